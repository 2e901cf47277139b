// approval/types.go
package approval

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Approval type names. The set is closed: anything not registered below is
// rejected at create time, and the dispatcher table must cover every entry.
const (
	TypeCourseDetails        = "course_details"
	TypeCollegeCourseDetails = "college_course_details"
	TypeRegistrationForm     = "registration_form"
	TypeApplicationForm      = "application_form"
	TypeSubscription         = "subscription"
	TypeCollegeSubscription  = "college_subscription"
	TypeAdditionalDetails    = "additional_details"
	TypeColorTheme           = "color_theme"
)

// GuardMode controls how the duplication guard scopes concurrently-open
// requests of one type for one organization.
type GuardMode int

const (
	// GuardPerOrg allows at most one open request of the type per org.
	GuardPerOrg GuardMode = iota
	// GuardSecondaryKey allows concurrent open requests when they target
	// different entities, distinguished by a payload field.
	GuardSecondaryKey
	// GuardOff disables duplication checking for the type entirely.
	GuardOff
)

// Organization kinds.
const (
	OrgKindClient  = "client"
	OrgKindCollege = "college"
)

// TypeSpec describes one approval category: which onboarding step it drives,
// how duplicates are guarded, and which organization kind may submit it.
type TypeSpec struct {
	Name         string
	Step         string
	Guard        GuardMode
	SecondaryKey string // payload field used when Guard is GuardSecondaryKey
	OrgKind      string
}

// typeRegistry is the closed table of supported approval categories.
// Application forms are intentionally relaxed to a per-form scope: a college
// runs several forms at once and each routes through its own request.
var typeRegistry = map[string]TypeSpec{
	TypeCourseDetails:        {Name: TypeCourseDetails, Step: "course_details", Guard: GuardPerOrg, OrgKind: OrgKindClient},
	TypeCollegeCourseDetails: {Name: TypeCollegeCourseDetails, Step: "course_details", Guard: GuardPerOrg, OrgKind: OrgKindCollege},
	TypeRegistrationForm:     {Name: TypeRegistrationForm, Step: "registration_form", Guard: GuardPerOrg, OrgKind: OrgKindClient},
	TypeApplicationForm:      {Name: TypeApplicationForm, Step: "application_form", Guard: GuardSecondaryKey, SecondaryKey: "form_id", OrgKind: OrgKindCollege},
	TypeSubscription:         {Name: TypeSubscription, Step: "subscription", Guard: GuardPerOrg, OrgKind: OrgKindClient},
	TypeCollegeSubscription:  {Name: TypeCollegeSubscription, Step: "subscription", Guard: GuardPerOrg, OrgKind: OrgKindCollege},
	TypeAdditionalDetails:    {Name: TypeAdditionalDetails, Step: "additional_details", Guard: GuardPerOrg, OrgKind: OrgKindClient},
	TypeColorTheme:           {Name: TypeColorTheme, Step: "color_theme", Guard: GuardPerOrg, OrgKind: OrgKindClient},
}

// TypePrecedence is the fixed ordering used when grouping a user's requests
// into per-organization arrays.
var TypePrecedence = []string{
	TypeAdditionalDetails,
	TypeSubscription,
	TypeCollegeSubscription,
	TypeCourseDetails,
	TypeCollegeCourseDetails,
	TypeRegistrationForm,
	TypeApplicationForm,
	TypeColorTheme,
}

// LookupType returns the spec for a registered approval type.
func LookupType(name string) (TypeSpec, bool) {
	spec, ok := typeRegistry[name]
	return spec, ok
}

// RegisteredTypes returns the names of all registered approval types.
func RegisteredTypes() []string {
	names := make([]string, 0, len(typeRegistry))
	for name := range typeRegistry {
		names = append(names, name)
	}
	return names
}

func typeRank(name string) int {
	for i, t := range TypePrecedence {
		if t == name {
			return i
		}
	}
	return len(TypePrecedence)
}

// dedupeKey computes the uniqueness-constraint key for an open request. With
// GuardOff the request id itself is folded in, so the key never collides and
// the store-level constraint becomes a no-op for that type.
func (s TypeSpec) dedupeKey(org OrgRef, payload bson.M, uniqueSuffix string) string {
	base := org.Key() + "|" + s.Name
	switch s.Guard {
	case GuardSecondaryKey:
		v := ""
		if payload != nil {
			if raw, ok := payload[s.SecondaryKey]; ok {
				v = fmt.Sprintf("%v", raw)
			}
		}
		return base + "|" + v
	case GuardOff:
		return base + "|" + uniqueSuffix
	default:
		return base
	}
}
