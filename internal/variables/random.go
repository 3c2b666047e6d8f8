package variables

import (
	"regexp"
	"strconv"
	"strings"
)

// maxRandomLen caps generated random strings.
const maxRandomLen = 1000

const (
	lowerLetters = "abcdefghijklmnopqrstuvwxyz"
	upperLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	symbols      = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	grawlix      = "@#$%&!*"
)

var (
	rndmNumRe    = regexp.MustCompile(`%rndm_num_(-?\d+)_(-?\d+)%`)
	rndmAlphaRe  = regexp.MustCompile(`%rndm_(abc|abcnum)(?:_(lower|upper))?_(\d+)%`)
	rndmCharsRe  = regexp.MustCompile(`%rndm_(ascii|symbol|grawlix)_(\d+)%`)
	rndmCustomRe = regexp.MustCompile(`%rndm_custom_(\d+)_([^%]+)%`)
)

// printableASCII is every printable, non-space ASCII character.
var printableASCII = func() string {
	var b strings.Builder
	for ch := byte(33); ch <= 126; ch++ {
		b.WriteByte(ch)
	}
	return b.String()
}()

// RandomPass substitutes randomizer tokens. Each token is consumed once, so a
// resolved template reaches a fixed point even though the output differs per call.
func RandomPass(s string, c *Context) string {
	if !strings.Contains(s, "%rndm_") {
		return s
	}
	s = rndmNumRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := rndmNumRe.FindStringSubmatch(tok)
		lo, err1 := strconv.Atoi(m[1])
		hi, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			return tok
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return strconv.Itoa(lo + c.intN(hi-lo+1))
	})
	s = rndmAlphaRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := rndmAlphaRe.FindStringSubmatch(tok)
		n, ok := randomLen(m[3])
		if !ok {
			return tok
		}
		var set string
		switch m[2] {
		case "lower":
			set = lowerLetters
		case "upper":
			set = upperLetters
		default:
			set = lowerLetters + upperLetters
		}
		if m[1] == "abcnum" {
			set += digits
		}
		return randomString(c, set, n)
	})
	s = rndmCharsRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := rndmCharsRe.FindStringSubmatch(tok)
		n, ok := randomLen(m[2])
		if !ok {
			return tok
		}
		switch m[1] {
		case "ascii":
			return randomString(c, printableASCII, n)
		case "symbol":
			return randomString(c, symbols, n)
		default:
			return randomString(c, grawlix, n)
		}
	})
	return rndmCustomRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := rndmCustomRe.FindStringSubmatch(tok)
		n, ok := randomLen(m[1])
		if !ok {
			return tok
		}
		return PickCustom(c, strings.Split(m[2], ","), n)
	})
}

func randomLen(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	if n > maxRandomLen {
		n = maxRandomLen
	}
	return n, true
}

func randomString(c *Context, set string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = set[c.intN(len(set))]
	}
	return string(b)
}

// PickCustom shuffles the items (Fisher-Yates) and joins the first n with ", ".
// Repeated items weigh the pick towards that value.
func PickCustom(c *Context, items []string, n int) string {
	pool := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			pool = append(pool, it)
		}
	}
	for i := len(pool) - 1; i > 0; i-- {
		j := c.intN(i + 1)
		pool[i], pool[j] = pool[j], pool[i]
	}
	if n > len(pool) {
		n = len(pool)
	}
	return strings.Join(pool[:n], ", ")
}
