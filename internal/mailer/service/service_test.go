package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/programisto-labs/edrm-mailer/internal/config"
	"github.com/programisto-labs/edrm-mailer/internal/mailer/domain"
)

type fakeTemplates struct {
	templates  map[string]domain.Template
	byID       map[uuid.UUID]domain.Template
	resolveErr error
	resolved   int
}

func (f *fakeTemplates) Resolve(_ context.Context, name string, _ *uuid.UUID) (domain.Template, error) {
	f.resolved++
	if f.resolveErr != nil {
		return domain.Template{}, f.resolveErr
	}
	t, ok := f.templates[name]
	if !ok {
		return domain.Template{}, domain.TemplateNotFoundError{Name: name}
	}
	return t, nil
}

func (f *fakeTemplates) GetByID(_ context.Context, id uuid.UUID) (domain.Template, error) {
	t, ok := f.byID[id]
	if !ok {
		return domain.Template{}, domain.TemplateNotFoundError{Name: id.String()}
	}
	return t, nil
}

func (f *fakeTemplates) Create(context.Context, *domain.Template) error { return nil }
func (f *fakeTemplates) Update(context.Context, *domain.Template) error { return nil }
func (f *fakeTemplates) Delete(context.Context, uuid.UUID) error        { return nil }
func (f *fakeTemplates) List(context.Context, domain.ListTemplatesQuery) ([]domain.Template, int64, error) {
	return nil, 0, nil
}

type fakeMessages struct {
	stored      map[uuid.UUID]domain.Message
	created     []domain.Message
	createErr   error
	markSentErr error
	marked      []time.Time
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{stored: map[uuid.UUID]domain.Message{}}
}

func (f *fakeMessages) Create(_ context.Context, m *domain.Message) error {
	if f.createErr != nil {
		return f.createErr
	}
	m.ID = uuid.New()
	m.CreatedAt = time.Now().UTC()
	f.created = append(f.created, *m)
	f.stored[m.ID] = *m
	return nil
}

func (f *fakeMessages) GetByID(_ context.Context, id uuid.UUID) (domain.Message, error) {
	m, ok := f.stored[id]
	if !ok {
		return domain.Message{}, domain.MessageNotFoundError{ID: id}
	}
	return m, nil
}

func (f *fakeMessages) MarkSent(_ context.Context, id uuid.UUID, at time.Time) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	m, ok := f.stored[id]
	if !ok {
		return domain.MessageNotFoundError{ID: id}
	}
	m.SentAt = &at
	f.stored[id] = m
	f.marked = append(f.marked, at)
	return nil
}

func (f *fakeMessages) List(context.Context, domain.ListMessagesQuery) ([]domain.Message, int64, error) {
	return nil, 0, nil
}

type fakeSender struct {
	sent    []domain.OutboundMail
	creds   []domain.Credentials
	sendErr error
	info    string
}

func (f *fakeSender) Send(_ context.Context, creds domain.Credentials, mail domain.OutboundMail) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.creds = append(f.creds, creds)
	f.sent = append(f.sent, mail)
	if f.info != "" {
		return f.info, nil
	}
	return "accepted", nil
}

type fakeFiles struct {
	downloads map[string]domain.FileDownload
	errs      map[string]error
	calls     []string
}

func (f *fakeFiles) Download(_ context.Context, fileID string) (domain.FileDownload, error) {
	f.calls = append(f.calls, fileID)
	if err, ok := f.errs[fileID]; ok {
		return domain.FileDownload{}, err
	}
	dl, ok := f.downloads[fileID]
	if !ok {
		return domain.FileDownload{}, errors.New("file not found")
	}
	return dl, nil
}

func testConfig() config.Config {
	return config.Config{EmailUser: "mailer@example.com", EmailPassword: "secret"}
}

func newTestService(templates *fakeTemplates, messages *fakeMessages, sender *fakeSender, files *fakeFiles) *Service {
	if files == nil {
		files = &fakeFiles{}
	}
	return New(templates, messages, sender, files, testConfig())
}

func welcomeTemplates() *fakeTemplates {
	id := uuid.New()
	tmpl := domain.Template{
		ID:      id,
		Name:    "welcome",
		Subject: "Welcome aboard",
		Body:    "Hello {name}, your id is {id}",
	}
	return &fakeTemplates{
		templates: map[string]domain.Template{"welcome": tmpl},
		byID:      map[uuid.UUID]domain.Template{id: tmpl},
	}
}

func TestSendFromTemplate_ValidationBeforeAnyIO(t *testing.T) {
	tests := []struct {
		name  string
		req   domain.DispatchRequest
		field string
	}{
		{"missing template", domain.DispatchRequest{To: "a@b.c", Data: map[string]any{}}, "template"},
		{"missing to", domain.DispatchRequest{Template: "welcome", Data: map[string]any{}}, "to"},
		{"missing data", domain.DispatchRequest{Template: "welcome", To: "a@b.c"}, "data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates := welcomeTemplates()
			messages := newFakeMessages()
			sender := &fakeSender{}
			svc := newTestService(templates, messages, sender, nil)

			_, err := svc.SendFromTemplate(context.Background(), tt.req)

			var verr domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, templates.resolved, "no template lookup before validation passes")
			assert.Empty(t, messages.created, "no record persisted")
			assert.Empty(t, sender.sent, "no send attempted")
		})
	}
}

func TestSendFromTemplate_MissingCredentials(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{}
	svc := New(templates, messages, sender, &fakeFiles{}, config.Config{})

	_, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome", To: "a@b.c", Data: map[string]any{},
	})

	assert.ErrorIs(t, err, domain.ErrCredentialsMissing)
	assert.Zero(t, templates.resolved)
	assert.Empty(t, messages.created)
}

func TestSendFromTemplate_TemplateMissCapturedInResult(t *testing.T) {
	templates := &fakeTemplates{templates: map[string]domain.Template{}}
	messages := newFakeMessages()
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	result, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "ghost", To: "a@b.c", Data: map[string]any{},
	})

	require.NoError(t, err, "template misses are reported in the result, not raised")
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "ghost")
	assert.Empty(t, messages.created, "nothing persisted on a miss")
	assert.Empty(t, sender.sent)
}

func TestSendFromTemplate_PersistenceFailureBlocksSend(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	messages.createErr = errors.New("connection refused")
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	result, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome", To: "a@b.c", Data: map[string]any{},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "persistence failed")
	assert.Empty(t, sender.sent, "no email may leave without an audit record")
}

func TestSendFromTemplate_HappyPath(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{info: "accepted by smtp.office365.com:587"}
	svc := newTestService(templates, messages, sender, nil)

	result, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome",
		To:       "ada@example.com",
		Data:     map[string]any{"name": "Ada", "id": 42},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "accepted by smtp.office365.com:587", result.Info)
	assert.Empty(t, result.Error)

	require.Len(t, messages.created, 1)
	created := messages.created[0]
	assert.Equal(t, result.MailMessageID, created.ID.String())
	assert.Equal(t, "ada@example.com", created.To)
	assert.Equal(t, "mailer@example.com", created.From, "sender address comes from the resolved credentials")
	assert.Equal(t, "Welcome aboard", created.Subject, "subject falls back to the template")
	assert.Equal(t, "Hello Ada, your id is 42", created.Body)

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hello Ada, your id is 42", sender.sent[0].Body)
	assert.Equal(t, domain.Credentials{User: "mailer@example.com", Password: "secret"}, sender.creds[0])

	stored := messages.stored[created.ID]
	require.NotNil(t, stored.SentAt, "delivery confirmation stamps SentAt")
}

func TestSendFromTemplate_SubjectOverride(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	_, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome",
		To:       "a@b.c",
		Subject:  "Custom subject",
		Data:     map[string]any{},
	})

	require.NoError(t, err)
	require.Len(t, messages.created, 1)
	assert.Equal(t, "Custom subject", messages.created[0].Subject)
}

func TestSendFromTemplate_TransportFailureLeavesRecordPending(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{sendErr: errors.New("550 relay denied")}
	svc := newTestService(templates, messages, sender, nil)

	result, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome", To: "a@b.c", Data: map[string]any{},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "550 relay denied")

	require.Len(t, messages.created, 1)
	id := messages.created[0].ID
	assert.Equal(t, id.String(), result.MailMessageID, "the persisted record is reported even on failure")
	assert.Nil(t, messages.stored[id].SentAt, "record stays pending for audit and resend")
}

func TestSendFromTemplate_MarkSentFailureReportsCaveat(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	messages.markSentErr = errors.New("deadlock detected")
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	result, err := svc.SendFromTemplate(context.Background(), domain.DispatchRequest{
		Template: "welcome", To: "a@b.c", Data: map[string]any{},
	})

	require.NoError(t, err)
	assert.True(t, result.Success, "the email did go out")
	assert.Equal(t, staleStatusCaveat, result.Error)
	require.Len(t, messages.created, 1)
	assert.Nil(t, messages.stored[messages.created[0].ID].SentAt)
}

func TestResend_ReusesStoredMessageVerbatim(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	id := uuid.New()
	earlier := time.Now().Add(-time.Hour).UTC()
	messages.stored[id] = domain.Message{
		ID:      id,
		To:      "ada@example.com",
		From:    "original@example.com",
		Subject: "Original subject",
		Body:    "Original rendered body",
		SentAt:  &earlier,
	}

	result, err := svc.Resend(context.Background(), id, "", "")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, id.String(), result.MailMessageID)

	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, "original@example.com", mail.From, "stored sender is reused, not re-resolved")
	assert.Equal(t, "ada@example.com", mail.To)
	assert.Equal(t, "Original subject", mail.Subject)
	assert.Equal(t, "Original rendered body", mail.Body)
	assert.Nil(t, mail.Attachments, "resend never carries attachments")

	assert.Empty(t, messages.created, "resend creates no new record")
	require.NotNil(t, messages.stored[id].SentAt)
	assert.True(t, messages.stored[id].SentAt.After(earlier), "each success overwrites SentAt")
}

func TestResend_UnknownMessage(t *testing.T) {
	svc := newTestService(welcomeTemplates(), newFakeMessages(), &fakeSender{}, nil)

	id := uuid.New()
	_, err := svc.Resend(context.Background(), id, "", "")

	var notFound domain.MessageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, id, notFound.ID)
}

func TestResend_EmptyBodyFallsBackToTemplate(t *testing.T) {
	templates := welcomeTemplates()
	messages := newFakeMessages()
	sender := &fakeSender{}
	svc := newTestService(templates, messages, sender, nil)

	tmplID := templates.templates["welcome"].ID
	id := uuid.New()
	messages.stored[id] = domain.Message{
		ID:         id,
		TemplateID: &tmplID,
		To:         "a@b.c",
		From:       "mailer@example.com",
		Subject:    "Welcome aboard",
	}

	result, err := svc.Resend(context.Background(), id, "", "")

	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Hello {name}, your id is {id}", sender.sent[0].Body,
		"legacy records fall back to the raw template body")
}

func TestResend_TransportFailure(t *testing.T) {
	messages := newFakeMessages()
	sender := &fakeSender{sendErr: errors.New("connection reset")}
	svc := newTestService(welcomeTemplates(), messages, sender, nil)

	id := uuid.New()
	messages.stored[id] = domain.Message{ID: id, To: "a@b.c", From: "x@y.z", Subject: "s", Body: "b"}

	result, err := svc.Resend(context.Background(), id, "", "")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "connection reset")
	assert.Nil(t, messages.stored[id].SentAt)
}
