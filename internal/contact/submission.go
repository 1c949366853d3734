// Package contact validates quote requests and forwards them by email.
package contact

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks payloads rejected by the schema.
var ErrValidation = errors.New("contact: validation failed")

// Request types.
const (
	TypeIndividual   = "particulier"
	TypeProfessional = "professionnel"
)

// Submission is the contact form payload.
type Submission struct {
	Type               string    `json:"type" validate:"required,oneof=particulier professionnel"`
	Name               string    `json:"name" validate:"required,min=2,max=100"`
	Email              string    `json:"email" validate:"required,max=254,email"`
	Phone              string    `json:"phone,omitempty" validate:"omitempty,phone"`
	Company            string    `json:"company,omitempty" validate:"omitempty,max=120"`
	Budget             string    `json:"budget,omitempty" validate:"omitempty,oneof=moins-500 500-1000 1000-5000 plus-5000 a-definir"`
	Deadline           string    `json:"deadline,omitempty" validate:"omitempty,oneof=urgent 1-semaine 1-mois flexible"`
	ProjectDescription string    `json:"projectDescription" validate:"required,min=10,max=5000"`
	Files              []FileRef `json:"files,omitempty" validate:"omitempty,max=10,dive"`
}

// FileRef points at a file previously stored through the upload endpoint.
type FileRef struct {
	Name     string `json:"name" validate:"required,max=255"`
	Size     int64  `json:"size" validate:"gte=0"`
	URL      string `json:"url" validate:"required,url"`
	Category string `json:"category,omitempty" validate:"omitempty,oneof=3d image document archive"`
}

// FieldError describes one rejected field, named by its JSON path.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every rejected field.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("contact: invalid fields: %s", strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

var phonePattern = regexp.MustCompile(`^[0-9 +().-]{6,30}$`)

// Validator checks submissions against the contact schema.
type Validator struct {
	validate *validator.Validate
}

// NewValidator builds a Validator reporting JSON field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return &Validator{validate: v}
}

// Normalize trims surrounding whitespace and lowercases the email.
func (s Submission) Normalize() Submission {
	s.Type = strings.ToLower(strings.TrimSpace(s.Type))
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Phone = strings.TrimSpace(s.Phone)
	s.Company = strings.TrimSpace(s.Company)
	s.Budget = strings.TrimSpace(s.Budget)
	s.Deadline = strings.TrimSpace(s.Deadline)
	s.ProjectDescription = strings.TrimSpace(s.ProjectDescription)
	if len(s.Files) > 0 {
		files := make([]FileRef, len(s.Files))
		for i, f := range s.Files {
			f.Name = strings.TrimSpace(f.Name)
			f.URL = strings.TrimSpace(f.URL)
			f.Category = strings.TrimSpace(f.Category)
			files[i] = f
		}
		s.Files = files
	}
	return s
}

// Validate returns nil or a *ValidationError.
func (v *Validator) Validate(s Submission) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
		})
	}
	return out
}

// fieldPath drops the root type name from the validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Ce champ est requis"
	case "email":
		return "Adresse email invalide"
	case "phone":
		return "Numéro de téléphone invalide"
	case "url":
		return "URL invalide"
	case "oneof":
		return "Valeur non autorisée"
	case "min":
		return fmt.Sprintf("Doit contenir au moins %s caractères", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s éléments maximum", fe.Param())
		}
		return fmt.Sprintf("Doit contenir au plus %s caractères", fe.Param())
	case "gte":
		return "Valeur invalide"
	default:
		return "Champ invalide"
	}
}
