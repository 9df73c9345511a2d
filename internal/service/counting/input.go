package counting

import (
	"strconv"
	"strings"

	"github.com/mamadbah2/stockcount/internal/domain/models"
)

// ParseSetInput reads a typed quantity. "12" sets the value, "+3" and "-2" adjust it.
func ParseSetInput(raw string) (value int, relative bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, models.InvalidInput("quantity must not be empty")
	}
	relative = raw[0] == '+' || raw[0] == '-'
	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, false, models.InvalidInput("%q is not a whole number", raw)
	}
	return value, relative, nil
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
