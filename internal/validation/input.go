package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	MinDisputeReasonLength  = 10
	MaxDisputeReasonLength  = 2000
	MaxResolutionNoteLength = 2000
	MaxRejectReasonLength   = 1000
	MaxArtifactLinkLength   = 500
	MaxArtifactLinks        = 20
	MaxArtifactFiles        = 10
)

// ValidateLength проверяет длину строки.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateNonEmpty проверяет, что строка не пустая.
func ValidateNonEmpty(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s не может быть пустым", fieldName)
	}
	return nil
}

// ValidateDisputeReason проверяет причину спора.
func ValidateDisputeReason(reason string) error {
	if err := ValidateNonEmpty("причина спора", reason); err != nil {
		return err
	}
	return ValidateLength("причина спора", strings.TrimSpace(reason), MinDisputeReasonLength, MaxDisputeReasonLength)
}

// ValidateOptionalText проверяет необязательный текст (заметка, причина отказа).
func ValidateOptionalText(fieldName, value string, max int) error {
	return ValidateLength(fieldName, strings.TrimSpace(value), 0, max)
}

// ValidateArtifactLink проверяет ссылку на результат работы.
func ValidateArtifactLink(link string) error {
	link = strings.TrimSpace(link)
	if link == "" {
		return fmt.Errorf("ссылка не может быть пустой")
	}

	if err := ValidateLength("ссылка", link, 0, MaxArtifactLinkLength); err != nil {
		return err
	}

	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("некорректный формат URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("ссылка должна начинаться с http:// или https://")
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("ссылка должна содержать доменное имя")
	}

	return nil
}
