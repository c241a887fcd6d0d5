// Package amount converts user-supplied decimal strings into integer base
// units. All arithmetic is exact string/big.Int manipulation; binary floating
// point is never used, so no funds are lost to rounding.
package amount

import (
	"math/big"
	"strings"

	xerrors "OxVenta-Custody/internal/errors"
)

// NativeDecimals is the precision of EVM native currency (1 ether = 1e18 wei).
const NativeDecimals = 18

var shorthand = map[byte]int{
	'k': 3,
	'm': 6,
	'b': 9,
}

// ToBaseUnits parses a positive decimal string ("1.5", "0.001") into base
// units at the given precision. More fraction digits than the precision
// allows is an error, not a silent truncation.
func ToBaseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount 不能为空")
	}
	if decimals < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "decimals 不能为负数")
	}

	whole, frac := value, ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole, frac = value[:idx], value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount 不是合法的十进制数: "+value)
	}
	if len(frac) > decimals {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount 小数位数超出精度: "+value)
	}

	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount 解析失败: "+value)
	}
	if result.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "amount 必须大于零: "+value)
	}
	return result, nil
}

// ParseSupply parses a whole-number token supply, accepting the shorthand
// notations users type in chat: "1k" -> 1000, "2m" -> 2000000, "1b" -> 1e9.
func ParseSupply(value string) (*big.Int, error) {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "supply 不能为空")
	}

	zeros := 0
	if mult, ok := shorthand[value[len(value)-1]]; ok {
		zeros = mult
		value = value[:len(value)-1]
	}
	if value == "" || !isDigits(value) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "supply 不是合法的整数")
	}

	result, ok := new(big.Int).SetString(value+strings.Repeat("0", zeros), 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "supply 解析失败")
	}
	if result.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "supply 必须大于零")
	}
	return result, nil
}

// FromBaseUnits renders base units as a decimal string for user-facing
// messages ("1500000000000000000" at 18 decimals -> "1.5").
func FromBaseUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	digits := value.String()
	if decimals <= 0 {
		return digits
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
