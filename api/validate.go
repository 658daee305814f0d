package api

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

//ValidateString returns an error if value is blank or longer than max characters
func ValidateString(field, value string, max int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must not be empty", field)
	} else if n := utf8.RuneCountInString(value); n > max {
		return fmt.Errorf("%s length (%d) was more than maximum allowed (%d)", field, n, max)
	}
	return nil
}
