// Package directory talks to the external family-membership service.
// The engine only ever reads from it: family circles for mention
// resolution, warmth scoring and room authorization, and the
// post-to-pregnancy mapping for target checks.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bumpfeed/contract"
	"bumpfeed/domain"
)

// HTTPDirectory resolves family data over the feed service's API.
type HTTPDirectory struct {
	log     *slog.Logger
	baseURL string
	client  *http.Client
}

func NewHTTPDirectory(log *slog.Logger, baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		log:     log,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type familyMemberDTO struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Relationship string `json:"relationship"`
	Owner        bool   `json:"is_owner"`
}

type pregnancyOfPostDTO struct {
	PregnancyID string `json:"pregnancy_id"`
}

func (d *HTTPDirectory) FamilyOf(ctx context.Context, pregnancyID string) ([]domain.FamilyMember, error) {
	var dtos []familyMemberDTO
	url := fmt.Sprintf("%s/pregnancies/%s/family", d.baseURL, pregnancyID)
	if err := d.get(ctx, url, &dtos); err != nil {
		return nil, err
	}
	members := make([]domain.FamilyMember, 0, len(dtos))
	for _, dto := range dtos {
		members = append(members, domain.FamilyMember{
			UserID:       dto.UserID,
			DisplayName:  dto.DisplayName,
			Relationship: domain.Relationship(dto.Relationship),
			Owner:        dto.Owner,
		})
	}
	return members, nil
}

func (d *HTTPDirectory) PregnancyOfPost(ctx context.Context, postID string) (string, error) {
	var dto pregnancyOfPostDTO
	url := fmt.Sprintf("%s/posts/%s/pregnancy", d.baseURL, postID)
	if err := d.get(ctx, url, &dto); err != nil {
		return "", err
	}
	return dto.PregnancyID, nil
}

func (d *HTTPDirectory) get(ctx context.Context, url string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	response, err := d.client.Do(request)
	if err != nil {
		return fmt.Errorf("directory unreachable: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned %d for %s", response.StatusCode, url)
	}
	return json.NewDecoder(response.Body).Decode(out)
}

// Authorizer answers room-access questions from the family circle.
// Positive answers are never cached across sessions.
type Authorizer struct {
	log       *slog.Logger
	directory contract.FamilyDirectory
}

func NewAuthorizer(log *slog.Logger, directory contract.FamilyDirectory) *Authorizer {
	return &Authorizer{log: log, directory: directory}
}

// CanAccessRoom grants access when the user belongs to the family
// circle of the room's pregnancy. Lookup failures deny.
func (a *Authorizer) CanAccessRoom(ctx context.Context, userID string, roomID domain.RoomID) bool {
	pregnancyID := roomID.PregnancyID()
	if pregnancyID == "" {
		return false
	}
	members, err := a.directory.FamilyOf(ctx, pregnancyID)
	if err != nil {
		a.log.Warn("Family lookup failed, denying room access", "room", roomID, "err", err)
		return false
	}
	for _, member := range members {
		if member.UserID == userID {
			return true
		}
	}
	return false
}
