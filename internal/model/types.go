package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies which kind of account a record is.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Roles lists every supported account role.
var Roles = []Role{RoleStudent, RoleTeacher}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Other returns the counterpart role (student <-> teacher).
func (r Role) Other() Role {
	if r == RoleStudent {
		return RoleTeacher
	}
	return RoleStudent
}

// Plural is the path segment the role's routes are mounted under.
func (r Role) Plural() string { return string(r) + "s" }

// PhotoField is the multipart field name carrying the role's photo upload.
func (r Role) PhotoField() string { return string(r) + "Photo" }

// Profile is the role-specific part of an account.
type Profile interface {
	Role() Role
	Clone() Profile
}

// NewProfile returns an empty profile for role, ready to be decoded into.
func NewProfile(role Role) (Profile, error) {
	switch role {
	case RoleStudent:
		return &StudentProfile{}, nil
	case RoleTeacher:
		return &TeacherProfile{}, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// DecodeProfile decodes a JSON profile document for role.
func DecodeProfile(role Role, data []byte) (Profile, error) {
	p, err := NewProfile(role)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s profile: %w", role, err)
	}
	return p, nil
}

// Phone is a contact number. It accepts both JSON strings and numbers.
type Phone string

func (p *Phone) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Phone(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("phone must be a string or number: %w", err)
	}
	if _, err := strconv.ParseUint(n.String(), 10, 64); err != nil {
		return fmt.Errorf("phone must contain digits only")
	}
	*p = Phone(n.String())
	return nil
}

// StudentProfile holds the student-only fields.
type StudentProfile struct {
	Age          int    `json:"studentAge" validate:"required,gt=0,lt=150"`
	SchoolName   string `json:"schoolName" validate:"required"`
	ParentMobile Phone  `json:"parentMobile" validate:"required"`
	Std          string `json:"studentStd" validate:"required"`
	ParentName   string `json:"parentName"`
	ParentEmail  string `json:"parentEmail" validate:"omitempty,email"`
	Board        string `json:"studentBoard"`
	Batch        string `json:"studentBatch"`
}

func (p *StudentProfile) Role() Role { return RoleStudent }

func (p *StudentProfile) Clone() Profile {
	c := *p
	return &c
}

// TeacherProfile holds the teacher-only fields.
type TeacherProfile struct {
	Age           int      `json:"teacherAge" validate:"required,gt=0,lt=150"`
	Mobile        Phone    `json:"teacherMobile" validate:"required"`
	Subjects      []string `json:"subjectSpecific"`
	Email         string   `json:"teacherEmail" validate:"omitempty,email"`
	Fees          float64  `json:"teacherFees" validate:"gte=0"`
	TimeAvailable string   `json:"timeAvailable"`
}

func (p *TeacherProfile) Role() Role { return RoleTeacher }

func (p *TeacherProfile) Clone() Profile {
	c := *p
	c.Subjects = append([]string(nil), p.Subjects...)
	return &c
}

// Account is a student or teacher record. PasswordHash and RefreshToken
// never leave the server.
type Account struct {
	ID           uuid.UUID   `json:"id"`
	Role         Role        `json:"role"`
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	FullName     string      `json:"fullName"`
	Photo        *string     `json:"photo,omitempty"`
	RefreshToken *string     `json:"-"`
	Links        []uuid.UUID `json:"links"`
	Profile      Profile     `json:"profile"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	c := *a
	if a.Photo != nil {
		photo := *a.Photo
		c.Photo = &photo
	}
	if a.RefreshToken != nil {
		token := *a.RefreshToken
		c.RefreshToken = &token
	}
	c.Links = append([]uuid.UUID(nil), a.Links...)
	if a.Profile != nil {
		c.Profile = a.Profile.Clone()
	}
	return &c
}

// Sanitized returns a copy without the password hash and stored refresh token.
func (a *Account) Sanitized() *Account {
	c := a.Clone()
	c.PasswordHash = ""
	c.RefreshToken = nil
	return c
}

// HasLink reports whether id is among the account's associated accounts.
func (a *Account) HasLink(id uuid.UUID) bool {
	for _, l := range a.Links {
		if l == id {
			return true
		}
	}
	return false
}

// NormalizeUsername is applied before any username comparison or write.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
