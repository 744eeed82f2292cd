package models

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/crypto/sha3"

	"github.com/cfilipov/blogd/internal/db"
)

const (
	bcryptCost      = 10
	shake256Length  = 16 // bytes → 32 hex chars
	tokenExpiration = 365 * 24 * time.Hour
	secretAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	secretLength    = 64
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is one browser profile. Its ID is the origin scope of the
// preference store: every tab presenting the same profile cookie shares
// one preference slot.
type Profile struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

// ProfileClaims carry enough to rebuild a profile that was issued but
// never saved.
type ProfileClaims struct {
	H       string `json:"h"`
	Created int64  `json:"c"`
	jwt.RegisteredClaims
}

type ProfileStore struct {
	db *bolt.DB
}

func NewProfileStore(database *bolt.DB) *ProfileStore {
	return &ProfileStore{db: database}
}

// NewProfile returns an unsaved profile with a random ID. CreatedAt is kept
// to the second so it survives the round trip through a token.
func NewProfile() *Profile {
	now := time.Now().UTC().Truncate(time.Second)
	return &Profile{ID: uuid.NewString(), CreatedAt: now, LastSeen: now}
}

// Create registers a new profile with a random ID.
func (s *ProfileStore) Create() (*Profile, error) {
	p := NewProfile()
	if err := s.put(p); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return p, nil
}

func (s *ProfileStore) put(p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketProfiles).Put([]byte(p.ID), data)
	})
}

// Find returns the profile or nil if not found.
func (s *ProfileStore) Find(id string) (*Profile, error) {
	var p *Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(db.BucketProfiles).Get([]byte(id))
		if v == nil {
			return nil
		}
		p = &Profile{}
		return json.Unmarshal(v, p)
	})
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

// Ensure saves p if it is not stored yet and records that it was just seen.
func (s *ProfileStore) Ensure(p *Profile) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(db.BucketProfiles)
		stored := *p
		if v := bucket.Get([]byte(p.ID)); v != nil {
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("unmarshal profile: %w", err)
			}
		}
		stored.LastSeen = time.Now().UTC()
		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("marshal profile: %w", err)
		}
		return bucket.Put([]byte(p.ID), data)
	})
	if err != nil {
		return fmt.Errorf("ensure profile %q: %w", p.ID, err)
	}
	return nil
}

// List returns every profile.
func (s *ProfileStore) List() ([]Profile, error) {
	var out []Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(db.BucketProfiles).ForEach(func(_, v []byte) error {
			var p Profile
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("unmarshal profile: %w", err)
			}
			out = append(out, p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

// Count returns the number of profiles in the database.
func (s *ProfileStore) Count() (int, error) {
	var count int
	err := s.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket(db.BucketProfiles).Stats().KeyN
		return nil
	})
	return count, err
}

// CreateToken signs an HS256 cookie token naming the profile.
func CreateToken(p *Profile, secret string) (string, error) {
	now := time.Now()
	claims := ProfileClaims{
		H:       fingerprint(p),
		Created: p.CreatedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyToken parses and validates a profile token.
func VerifyToken(tokenString, secret string) (*ProfileClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	token, err := parser.ParseWithClaims(tokenString, &ProfileClaims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*ProfileClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// Matches reports whether the claims were issued for p as stored now.
func (c *ProfileClaims) Matches(p *Profile) bool {
	return p != nil && c.Subject == p.ID && c.H == fingerprint(p)
}

// Profile rebuilds the profile the claims were issued for.
func (c *ProfileClaims) Profile() *Profile {
	created := time.Unix(c.Created, 0).UTC()
	return &Profile{ID: c.Subject, CreatedAt: created, LastSeen: created}
}

func fingerprint(p *Profile) string {
	return Shake256Hex(p.ID+p.CreatedAt.Format(time.RFC3339Nano), shake256Length)
}

// Shake256Hex computes SHAKE256 of data and returns the first `length` bytes as hex.
func Shake256Hex(data string, length int) string {
	if data == "" {
		return ""
	}
	h := sha3.NewShake256()
	h.Write([]byte(data))
	out := make([]byte, length)
	h.Read(out)
	return hex.EncodeToString(out)
}

// GenSecret generates a cryptographically random alphanumeric string.
func GenSecret(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(secretAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = secretAlphabet[n.Int64()]
	}
	return string(b), nil
}
