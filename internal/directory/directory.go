// Package directory is the read-only view of residents and apartments.
//
// Apartment documents were written by several generations of the mobile app
// and the admin importer, each with its own field names. Every known shape is
// decoded here, once, into an Apartment; callers never look at raw documents.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/newport/internal/models"
)

// ErrNotFound is returned when an apartment or profile does not exist.
var ErrNotFound = errors.New("directory: not found")

// Variant names the legacy document shape an apartment was decoded from.
type Variant string

const (
	VariantOwnerRecord Variant = "owner_record"
	VariantPassport    Variant = "passport"
	VariantUID         Variant = "uid"
	VariantUnowned     Variant = "unowned"
)

// Apartment is the normalized apartment record.
type Apartment struct {
	ID        string
	BlockID   string
	Number    string
	OwnerID   string
	MemberIDs []string
	Variant   Variant
}

// Label renders "<block>-<number>".
func (a *Apartment) Label() string {
	return a.BlockID + "-" + a.Number
}

// IsOwner reports whether userID owns the apartment.
func (a *Apartment) IsOwner(userID string) bool {
	return userID != "" && a.OwnerID == userID
}

// HasAccess reports whether userID owns or belongs to the apartment.
func (a *Apartment) HasAccess(userID string) bool {
	if a.IsOwner(userID) {
		return true
	}
	for _, id := range a.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type memberRef struct {
	UID      string `json:"uid"`
	MemberID string `json:"memberId"`
}

// rawApartment is the union of every field name seen in apartment documents.
type rawApartment struct {
	OwnerID               string      `json:"ownerId"`
	FamilyMemberIDs       []string    `json:"familyMemberIds"`
	FamilyMembers         []memberRef `json:"familyMembers"`
	Members               []memberRef `json:"members"`
	PassportNumberSnake   string      `json:"passport_number"`
	PassportNumberCamel   string      `json:"passportNumber"`
	ClientPassportDetails string      `json:"client_passport_details"`
	UID                   string      `json:"uid"`
	ApartmentNumber       string      `json:"apartmentNumber"`
	ApartmentNumberSnake  string      `json:"apartment_number"`
	BlockID               string      `json:"blockId"`
	BlockName             string      `json:"block_name"`
}

// Decode normalizes a raw apartment document stored under id.
func Decode(id string, document []byte) (*Apartment, error) {
	var raw rawApartment
	if len(document) > 0 {
		if err := json.Unmarshal(document, &raw); err != nil {
			return nil, fmt.Errorf("decode apartment %s: %w", id, err)
		}
	}

	apt := &Apartment{
		ID:      id,
		BlockID: firstNonEmpty(raw.BlockID, raw.BlockName),
		Number:  firstNonEmpty(raw.ApartmentNumber, raw.ApartmentNumberSnake),
	}

	switch {
	case raw.OwnerID != "":
		apt.Variant = VariantOwnerRecord
		apt.OwnerID = raw.OwnerID
	case firstNonEmpty(raw.PassportNumberSnake, raw.PassportNumberCamel, raw.ClientPassportDetails) != "":
		apt.Variant = VariantPassport
		apt.OwnerID = firstNonEmpty(raw.PassportNumberSnake, raw.PassportNumberCamel, raw.ClientPassportDetails)
	case raw.UID != "":
		apt.Variant = VariantUID
		apt.OwnerID = raw.UID
	default:
		apt.Variant = VariantUnowned
	}

	apt.MemberIDs = collectMembers(raw)

	// Documents keyed "<block>-<number>" often omit the fields themselves.
	if apt.BlockID == "" || apt.Number == "" {
		if block, number, ok := strings.Cut(id, "-"); ok {
			apt.BlockID = firstNonEmpty(apt.BlockID, block)
			apt.Number = firstNonEmpty(apt.Number, number)
		}
	}

	return apt, nil
}

func collectMembers(raw rawApartment) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, id := range raw.FamilyMemberIDs {
		add(id)
	}
	for _, m := range raw.FamilyMembers {
		add(firstNonEmpty(m.MemberID, m.UID))
	}
	for _, m := range raw.Members {
		add(firstNonEmpty(m.UID, m.MemberID))
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Directory reads apartments and resident profiles.
type Directory struct {
	db *gorm.DB
}

// New constructs a Directory backed by db.
func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// Apartment loads and normalizes the apartment with the given id.
func (d *Directory) Apartment(ctx context.Context, id string) (*Apartment, error) {
	var row models.Apartment
	if err := d.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load apartment %s: %w", id, err)
	}
	return Decode(row.ID, row.Document)
}

// OwnedApartments returns the subset of ids that userID owns, in input order.
// Unknown ids are skipped.
func (d *Directory) OwnedApartments(ctx context.Context, userID string, ids []string) ([]string, error) {
	var owned []string
	for _, id := range ids {
		apt, err := d.Apartment(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if apt.IsOwner(userID) {
			owned = append(owned, id)
		}
	}
	return owned, nil
}

// Profile loads the resident profile for userID.
func (d *Directory) Profile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := d.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return &profile, nil
}
