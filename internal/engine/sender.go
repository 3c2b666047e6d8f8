package engine

import "strings"

// DefaultAdminMarker prefixes sender specs coming from a bot owner.
const DefaultAdminMarker = "[admin]"

// DirectContext is the context label of a direct (one-to-one) chat.
const DirectContext = "DM"

// Sender is a parsed sender spec.
type Sender struct {
	Name      string
	IsGroup   bool
	GroupName string
	Admin     bool // spec carried the admin marker
}

// Context returns the chat label used by override lists and the welcome log:
// the group name, or "DM".
func (s Sender) Context() string {
	if s.IsGroup {
		return s.GroupName
	}
	return DirectContext
}

// ParseSender decodes "[admin]Group: Alice" style specs. The admin marker is optional
// and matched case-insensitively; "<group>: <sender>" marks group context.
func ParseSender(spec, adminMarker string) Sender {
	spec = strings.TrimSpace(spec)
	var s Sender
	if adminMarker != "" && len(spec) >= len(adminMarker) && strings.EqualFold(spec[:len(adminMarker)], adminMarker) {
		s.Admin = true
		spec = strings.TrimSpace(spec[len(adminMarker):])
	}
	if group, name, ok := strings.Cut(spec, ": "); ok {
		group, name = strings.TrimSpace(group), strings.TrimSpace(name)
		if group != "" && name != "" {
			s.IsGroup = true
			s.GroupName = group
			s.Name = name
			return s
		}
	}
	s.Name = spec
	return s
}
