package variables

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	messageRe        = regexp.MustCompile(`%message(?:_(\d+))?%`)
	historyRe        = regexp.MustCompile(`%prev_(message|reply)_([A-Za-z0-9,]+)_(\d+)%`)
	processingTimeRe = regexp.MustCompile(`%processing_time%`)
	captureRe        = regexp.MustCompile(`%capturing_group_(\d+)%`)
	staticRe         = regexp.MustCompile(`%([^%\s]+)%`)
)

// MessagePass substitutes %message% and %message_N% (first N characters).
func MessagePass(s string, c *Context) string {
	if !strings.Contains(s, "%message") {
		return s
	}
	return messageRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := messageRe.FindStringSubmatch(tok)
		if m[1] == "" {
			return c.Message
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return tok
		}
		runes := []rune(c.Message)
		if n < len(runes) {
			return string(runes[:n])
		}
		return c.Message
	})
}

// HistoryPass substitutes %prev_message_<ids>_<offset>% and %prev_reply_<ids>_<offset>%.
// ids is a comma-separated list of rule IDs or "all"; offset indexes the
// newest-first history filtered by those IDs. Missing entries resolve to "".
func HistoryPass(s string, c *Context) string {
	if !strings.Contains(s, "%prev_") {
		return s
	}
	return historyRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := historyRe.FindStringSubmatch(tok)
		offset, err := strconv.Atoi(m[3])
		if err != nil {
			return tok
		}
		ids := strings.Split(m[2], ",")
		idx := 0
		for _, e := range c.History {
			if !ruleIDIn(ids, e.RuleID) {
				continue
			}
			if idx == offset {
				if m[1] == "reply" {
					return e.BotReply
				}
				return e.UserMessage
			}
			idx++
		}
		return ""
	})
}

func ruleIDIn(ids []string, id string) bool {
	for _, want := range ids {
		if strings.EqualFold(want, "all") || strings.EqualFold(want, id) {
			return true
		}
	}
	return false
}

// ProcessingTimePass substitutes %processing_time% with the milliseconds elapsed
// since the message was received.
func ProcessingTimePass(s string, c *Context) string {
	if !strings.Contains(s, "%processing_time%") {
		return s
	}
	var ms int64
	if !c.ReceivedAt.IsZero() {
		ms = c.now().Sub(c.ReceivedAt).Milliseconds()
		if ms < 0 {
			ms = 0
		}
	}
	return processingTimeRe.ReplaceAllLiteralString(s, strconv.FormatInt(ms, 10))
}

// CapturePass substitutes %capturing_group_N% from an EXPERT match. Without a match
// context, or for a group that did not participate, the token is kept.
func CapturePass(s string, c *Context) string {
	if c.Captures == nil || !strings.Contains(s, "%capturing_group_") {
		return s
	}
	return captureRe.ReplaceAllStringFunc(s, func(tok string) string {
		n, err := strconv.Atoi(captureRe.FindStringSubmatch(tok)[1])
		if err != nil {
			return tok
		}
		if g, ok := c.Captures.Group(n); ok {
			return g
		}
		return tok
	})
}

// StaticPass substitutes static variables by name. Unknown names are kept verbatim.
func StaticPass(s string, c *Context) string {
	if len(c.Variables) == 0 || !strings.Contains(s, "%") {
		return s
	}
	return staticRe.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := c.Variables[name]; ok {
			return v
		}
		return tok
	})
}
