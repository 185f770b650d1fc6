package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinBankNameLength      = 2
	MaxBankNameLength      = 100
	MinAccountNumberLength = 6
	MaxAccountNumberLength = 20
	MinAccountNameLength   = 2
	MaxAccountNameLength   = 100
	MaxBankBranchLength    = 100
	MaxNotesLength         = 500
)

var accountNumberRe = regexp.MustCompile(`^[0-9]+$`)

// ValidateLength проверяет длину строки в символах.
func ValidateLength(value, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(strings.TrimSpace(value))
	if length < min {
		return fmt.Errorf("%s: минимум %d символов", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s: максимум %d символов", fieldName, max)
	}
	return nil
}

// ValidateAccountNumber проверяет номер банковского счёта: только цифры.
func ValidateAccountNumber(number string) error {
	number = strings.TrimSpace(number)
	if err := ValidateLength(number, "номер счёта", MinAccountNumberLength, MaxAccountNumberLength); err != nil {
		return err
	}
	if !accountNumberRe.MatchString(number) {
		return fmt.Errorf("номер счёта: допустимы только цифры")
	}
	return nil
}

// ValidateBankDetails проверяет полный набор реквизитов для вывода.
func ValidateBankDetails(bankName, accountNumber, accountName string) error {
	if err := ValidateLength(bankName, "название банка", MinBankNameLength, MaxBankNameLength); err != nil {
		return err
	}
	if err := ValidateAccountNumber(accountNumber); err != nil {
		return err
	}
	return ValidateLength(accountName, "имя владельца счёта", MinAccountNameLength, MaxAccountNameLength)
}

// ValidateOptionalNote проверяет необязательное текстовое поле.
func ValidateOptionalNote(value, fieldName string, max int) error {
	if value == "" {
		return nil
	}
	return ValidateLength(value, fieldName, 1, max)
}
