package engagement

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bumpfeed/domain"
	"bumpfeed/domain/event"
)

// fakeDirectory backs the external family-membership collaborator in
// package tests.
type fakeDirectory struct {
	pregnancyID string
	family      []domain.FamilyMember
	knownPosts  map[uuid.UUID]struct{}
}

func newFakeDirectory(pregnancyID string, posts ...uuid.UUID) *fakeDirectory {
	known := make(map[uuid.UUID]struct{}, len(posts))
	for _, post := range posts {
		known[post] = struct{}{}
	}
	return &fakeDirectory{
		pregnancyID: pregnancyID,
		knownPosts:  known,
		family: []domain.FamilyMember{
			{UserID: "owner", DisplayName: "Maya", Relationship: domain.RelPartner, Owner: true},
			{UserID: "partner", DisplayName: "Jonas", Relationship: domain.RelPartner},
			{UserID: "sister", DisplayName: "Lena", Relationship: domain.RelSibling},
			{UserID: "aunt", DisplayName: "Rosa Lee", Relationship: domain.RelAunt},
		},
	}
}

func (d *fakeDirectory) FamilyOf(_ context.Context, pregnancyID string) ([]domain.FamilyMember, error) {
	if pregnancyID != d.pregnancyID {
		return nil, fmt.Errorf("unknown pregnancy %s", pregnancyID)
	}
	return d.family, nil
}

func (d *fakeDirectory) PregnancyOfPost(_ context.Context, postID string) (string, error) {
	id, err := uuid.Parse(postID)
	if err != nil {
		return "", err
	}
	if _, ok := d.knownPosts[id]; !ok {
		return "", fmt.Errorf("unknown post %s", postID)
	}
	return d.pregnancyID, nil
}

// drain empties a buffered event channel into a slice.
func drain(events chan event.Outbound) []event.Outbound {
	var out []event.Outbound
	for {
		select {
		case e := <-events:
			out = append(out, e)
		default:
			return out
		}
	}
}
