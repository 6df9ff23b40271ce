// Package domain contains core concepts of the engagement engine.
// This file defines family relationships used by mention resolution
// and the warmth scorer.
package domain

// Relationship of a family member to the pregnancy owner.
type Relationship string

const (
	RelPartner     Relationship = "partner"
	RelParent      Relationship = "parent"
	RelSibling     Relationship = "sibling"
	RelGrandparent Relationship = "grandparent"
	RelAunt        Relationship = "aunt"
	RelUncle       Relationship = "uncle"
	RelCousin      Relationship = "cousin"
	RelFriend      Relationship = "friend"
)

// immediate is the relationship set that drives the immediate-family
// sub-score. Everything else counts as extended family.
var immediate = map[Relationship]struct{}{
	RelPartner: {},
	RelParent:  {},
	RelSibling: {},
}

func (r Relationship) Immediate() bool {
	_, ok := immediate[r]
	return ok
}

// FamilyMember is a member of a pregnancy's family circle, as reported
// by the external family-membership collaborator.
type FamilyMember struct {
	UserID       string
	DisplayName  string
	Relationship Relationship
	Owner        bool // the pregnancy owner herself
}
