package dto

// CheckoutRequest оформление бронирования клиентом.
type CheckoutRequest struct {
	ServiceID     string `json:"service_id" binding:"required"`
	Network       string `json:"network" binding:"required"`
	TxRef         string `json:"tx_ref" binding:"required"`
	SenderAddress string `json:"sender_address"`
	Amount        string `json:"amount"`
}

// SubmitPaymentRequest повторная заявка оплаты по бронированию.
type SubmitPaymentRequest struct {
	Network       string `json:"network" binding:"required"`
	TxRef         string `json:"tx_ref" binding:"required"`
	SenderAddress string `json:"sender_address"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
}

// TierPaymentRequest оплата уровня креатора.
type TierPaymentRequest struct {
	Tier          string `json:"tier" binding:"required"`
	Network       string `json:"network" binding:"required"`
	TxRef         string `json:"tx_ref" binding:"required"`
	SenderAddress string `json:"sender_address"`
	Amount        string `json:"amount" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
}

// VerifyPaymentRequest решение администратора по платежу.
type VerifyPaymentRequest struct {
	Decision string `json:"decision" binding:"required"`
}

// RejectBookingRequest отказ креатора от бронирования.
type RejectBookingRequest struct {
	Reason string `json:"reason"`
}

// OpenDisputeRequest открытие спора участником.
type OpenDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ResolveDisputeRequest решение спора.
type ResolveDisputeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
	Note    string `json:"note"`
}

// ExecuteObligationRequest отметка об исполнении выплаты или возврата.
// ExecutedAt в RFC3339, пусто значит сейчас. BeneficiaryAddress нужен, когда
// у обязательства не было зарегистрированного адреса.
type ExecuteObligationRequest struct {
	TxRef              string `json:"tx_ref" binding:"required"`
	BeneficiaryAddress string `json:"beneficiary_address"`
	ExecutedAt         string `json:"executed_at"`
}
