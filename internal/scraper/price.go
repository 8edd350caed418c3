package scraper

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var priceNumber = regexp.MustCompile(`[0-9][0-9.,]*`)

// ParsePrice は "¥10,000"、"1 234,56 €"、"$1,234.56" のような表記から価格を取り出す。
// 区切り文字が1種類だけで、その後ろがちょうど3桁の場合は桁区切りとみなす。
func ParsePrice(text string) decimal.NullDecimal {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' || r == '’' {
			return -1
		}
		return r
	}, text)

	n := strings.TrimRight(priceNumber.FindString(compact), ".,")
	if n == "" {
		return decimal.NullDecimal{}
	}

	lastDot := strings.LastIndex(n, ".")
	lastComma := strings.LastIndex(n, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			n = strings.ReplaceAll(n, ",", "")
		} else {
			n = strings.ReplaceAll(n, ".", "")
			n = strings.Replace(n, ",", ".", 1)
		}
	case lastDot >= 0:
		n = normalizeSingleSeparator(n, ".", lastDot)
	case lastComma >= 0:
		n = normalizeSingleSeparator(n, ",", lastComma)
	}

	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func normalizeSingleSeparator(n, sep string, last int) string {
	if strings.Count(n, sep) > 1 || len(n)-last-1 == 3 {
		return strings.ReplaceAll(n, sep, "")
	}
	return strings.Replace(n, sep, ".", 1)
}
