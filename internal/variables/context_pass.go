package variables

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	contextFieldRe   = regexp.MustCompile(`%(name|first_name|last_name|gc|rule_id|reply_count_overall)%`)
	statsFieldRe     = regexp.MustCompile(`%(received_count|reply_count|reply_count_day|reply_count_contacts|reply_count_groups)%`)
	ruleReplyCountRe = regexp.MustCompile(`%reply_count_([A-Za-z]?\d+(?:,[A-Za-z]?\d+)*)%`)
)

// ContextPass substitutes sender, chat and counter fields. Per-session counters are
// only resolved when stats are present.
func ContextPass(s string, c *Context) string {
	if !strings.Contains(s, "%") {
		return s
	}
	s = contextFieldRe.ReplaceAllStringFunc(s, func(tok string) string {
		switch contextFieldRe.FindStringSubmatch(tok)[1] {
		case "name":
			return c.SenderName
		case "first_name":
			return firstName(c.SenderName)
		case "last_name":
			return lastName(c.SenderName)
		case "gc":
			if c.IsGroup && c.GroupName != "" {
				return c.GroupName
			}
			return "CHAT"
		case "rule_id":
			return c.RuleID
		case "reply_count_overall":
			return strconv.Itoa(c.TotalMessages)
		}
		return tok
	})

	st := c.Stats
	if st == nil {
		return s
	}
	s = statsFieldRe.ReplaceAllStringFunc(s, func(tok string) string {
		switch statsFieldRe.FindStringSubmatch(tok)[1] {
		case "received_count":
			return strconv.Itoa(st.ReceivedCount)
		case "reply_count":
			return strconv.Itoa(st.ReplyCount)
		case "reply_count_day":
			if st.LastActiveDate == DateKey(c.now(), c.loc()) {
				return strconv.Itoa(st.TodayReplyCount)
			}
			return "0"
		case "reply_count_contacts":
			if !st.IsGroup {
				return strconv.Itoa(st.ReplyCount)
			}
			return "0"
		case "reply_count_groups":
			if st.IsGroup {
				return strconv.Itoa(st.ReplyCount)
			}
			return "0"
		}
		return tok
	})
	return ruleReplyCountRe.ReplaceAllStringFunc(s, func(tok string) string {
		sum := 0
		for _, id := range strings.Split(ruleReplyCountRe.FindStringSubmatch(tok)[1], ",") {
			sum += st.RuleReplyCounts[strings.ToUpper(id)]
		}
		return strconv.Itoa(sum)
	})
}

func firstName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func lastName(name string) string {
	fields := strings.Fields(name)
	if len(fields) < 2 {
		return ""
	}
	return fields[len(fields)-1]
}
