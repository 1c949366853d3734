package contact

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/thobenayann/hexoprint-sub001/internal/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	failOn   int
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if m.failOn == len(m.messages) {
		return "", errors.New("provider down")
	}
	return "msg-" + string(rune('0'+len(m.messages))), nil
}

type recordingPublisher struct {
	events []SubmittedEvent
	err    error
}

func (p *recordingPublisher) PublishContactSubmitted(_ context.Context, event SubmittedEvent) error {
	p.events = append(p.events, event)
	return p.err
}

func validSubmission() Submission {
	return Submission{
		Type:               "professionnel",
		Name:               "Camille Martin",
		Email:              " Camille@Example.com ",
		Phone:              "+33 6 12 34 56 78",
		Company:            "Atelier Martin",
		Budget:             "500-1000",
		Deadline:           "1-mois",
		ProjectDescription: "Support de capteur en PETG, 20 exemplaires.",
		Files: []FileRef{
			{Name: "support.stl", Size: 2 << 20, URL: "https://storage.googleapis.com/hexoprint/uploads/2025/03/x-support.stl", Category: "3d"},
		},
	}
}

func newTestService(t *testing.T, mailer mail.Mailer, publisher EventPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceDeps{
		Mailer:          mailer,
		Publisher:       publisher,
		From:            "HexoPrint <contact@hexoprint.fr>",
		AdminRecipients: []string{"atelier@hexoprint.fr", " "},
		Clock:           func() time.Time { return time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestSubmitSendsBothEmails(t *testing.T) {
	mailer := &recordingMailer{}
	publisher := &recordingPublisher{}
	svc := newTestService(t, mailer, publisher)

	receipt, err := svc.Submit(context.Background(), validSubmission())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if receipt.MessageID != "msg-1" {
		t.Fatalf("expected admin message id, got %q", receipt.MessageID)
	}
	if len(receipt.SubmissionID) != 26 {
		t.Fatalf("expected ulid submission id, got %q", receipt.SubmissionID)
	}
	if len(mailer.messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(mailer.messages))
	}

	admin := mailer.messages[0]
	if admin.ReplyTo != "camille@example.com" {
		t.Fatalf("expected reply-to customer, got %q", admin.ReplyTo)
	}
	if len(admin.To) != 1 || admin.To[0] != "atelier@hexoprint.fr" {
		t.Fatalf("unexpected admin recipients %v", admin.To)
	}
	for _, want := range []string{"Professionnel", "500 € à 1 000 €", "Sous un mois", "support.stl", "2.0 Mo", "10/03/2025 à 10:30"} {
		if !strings.Contains(admin.HTML, want) {
			t.Fatalf("admin html missing %q", want)
		}
	}

	customer := mailer.messages[1]
	if len(customer.To) != 1 || customer.To[0] != "camille@example.com" {
		t.Fatalf("unexpected customer recipients %v", customer.To)
	}
	if !strings.Contains(customer.HTML, "Bonjour Camille Martin") {
		t.Fatalf("customer html missing greeting")
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	ev := publisher.events[0]
	if ev.MessageID != "msg-1" || ev.FileCount != 1 || ev.SubmissionID != receipt.SubmissionID {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSubmitMissingEmail(t *testing.T) {
	mailer := &recordingMailer{}
	svc := newTestService(t, mailer, nil)

	sub := validSubmission()
	sub.Email = ""
	_, err := svc.Submit(context.Background(), sub)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation")
	}
	if len(verr.Fields) != 1 || verr.Fields[0].Field != "email" || verr.Fields[0].Message != "Ce champ est requis" {
		t.Fatalf("unexpected fields %+v", verr.Fields)
	}
	if len(mailer.messages) != 0 {
		t.Fatalf("mailer must not be called on invalid input")
	}
}

func TestValidatorReportsJSONPaths(t *testing.T) {
	v := NewValidator()
	err := v.Validate(Submission{
		Type:               "entreprise",
		Name:               "A",
		Email:              "not-an-email",
		Phone:              "abc",
		Budget:             "beaucoup",
		ProjectDescription: "court",
		Files:              []FileRef{{Name: "", URL: "nope"}},
	}.Normalize())

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got := map[string]string{}
	for _, f := range verr.Fields {
		got[f.Field] = f.Message
	}
	want := map[string]string{
		"type":               "Valeur non autorisée",
		"name":               "Doit contenir au moins 2 caractères",
		"email":              "Adresse email invalide",
		"phone":              "Numéro de téléphone invalide",
		"budget":             "Valeur non autorisée",
		"projectDescription": "Doit contenir au moins 10 caractères",
		"files[0].name":      "Ce champ est requis",
		"files[0].url":       "URL invalide",
	}
	for field, msg := range want {
		if got[field] != msg {
			t.Errorf("field %s: expected %q, got %q", field, msg, got[field])
		}
	}
	if len(got) != len(want) {
		t.Errorf("unexpected fields %v", got)
	}
}

func TestValidatorLimitsFiles(t *testing.T) {
	sub := validSubmission()
	for len(sub.Files) <= 10 {
		sub.Files = append(sub.Files, sub.Files[0])
	}
	var verr *ValidationError
	if err := NewValidator().Validate(sub.Normalize()); !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields[0].Field != "files" {
		t.Fatalf("expected files error, got %+v", verr.Fields)
	}
}

func TestSubmitDeliveryFailureIsAUnit(t *testing.T) {
	for _, failOn := range []int{1, 2} {
		mailer := &recordingMailer{failOn: failOn}
		publisher := &recordingPublisher{}
		svc := newTestService(t, mailer, publisher)

		_, err := svc.Submit(context.Background(), validSubmission())
		if !errors.Is(err, ErrDelivery) {
			t.Fatalf("failOn=%d: expected ErrDelivery, got %v", failOn, err)
		}
		if len(publisher.events) != 0 {
			t.Fatalf("failOn=%d: no event expected", failOn)
		}
	}
}

func TestSubmitPublishFailureIsIgnored(t *testing.T) {
	svc := newTestService(t, &recordingMailer{}, &recordingPublisher{err: errors.New("topic missing")})

	if _, err := svc.Submit(context.Background(), validSubmission()); err != nil {
		t.Fatalf("publish failure must not fail the submission: %v", err)
	}
}

func TestSubmitSanitizesMarkup(t *testing.T) {
	mailer := &recordingMailer{}
	svc := newTestService(t, mailer, nil)

	sub := validSubmission()
	sub.Name = `Camille <script>alert(1)</script>`
	sub.ProjectDescription = "Pièce <b>urgente</b> & fragile\nsur deux lignes"
	if _, err := svc.Submit(context.Background(), sub); err != nil {
		t.Fatalf("submit: %v", err)
	}

	admin := mailer.messages[0].HTML
	if strings.Contains(admin, "<script>") || strings.Contains(admin, "<b>") {
		t.Fatalf("markup leaked into email: %s", admin)
	}
	if !strings.Contains(admin, "Pièce urgente &amp; fragile<br>sur deux lignes") {
		t.Fatalf("expected escaped description, got %s", admin)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceDeps{}); !errors.Is(err, ErrMailerMissing) {
		t.Fatalf("expected ErrMailerMissing, got %v", err)
	}
	if _, err := NewService(ServiceDeps{Mailer: &recordingMailer{}, From: "a@b.c"}); err == nil {
		t.Fatalf("expected admin recipients error")
	}
}
