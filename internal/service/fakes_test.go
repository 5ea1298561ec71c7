package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/afelu/guardian/internal/kvstore"
	"github.com/afelu/guardian/internal/models"
	"github.com/afelu/guardian/internal/repository"
	"github.com/afelu/guardian/internal/webfetch"
)

// In-memory doubles for the store and client interfaces. They reproduce the
// contracts the real repositories implement, including the conditional quota
// decrement and the duplicate-key errors.

type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*models.User // keyed by telegram id
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[int64]*models.User)}
}

func (f *fakeUserStore) addUser(telegramID int64, gpt, fetch int) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &models.User{ID: f.nextID, TelegramID: telegramID, QuotaGPT: gpt, QuotaFetch: fetch}
	f.users[telegramID] = u
	return u
}

func (f *fakeUserStore) FindByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[telegramID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) ConsumeQuota(_ context.Context, userID int64, gpt, fetch int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID != userID {
			continue
		}
		if u.QuotaGPT < gpt || u.QuotaFetch < fetch {
			return false, nil
		}
		u.QuotaGPT -= gpt
		u.QuotaFetch -= fetch
		return true, nil
	}
	return false, nil
}

func (f *fakeUserStore) TouchLastActive(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, u := range f.users {
		if u.ID == userID {
			u.LastActive = &now
		}
	}
	return nil
}

func (f *fakeUserStore) quota(telegramID int64) (gpt, fetch int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[telegramID]
	return u.QuotaGPT, u.QuotaFetch
}

type fakeCodeStore struct {
	mu     sync.Mutex
	nextID int64
	codes  map[string]*models.AccessCode
	users  *fakeUserStore
	// forceDuplicates makes the next n Create calls fail with ErrDuplicate.
	forceDuplicates int
	createCalls     int
}

func newFakeCodeStore(users *fakeUserStore) *fakeCodeStore {
	return &fakeCodeStore{codes: make(map[string]*models.AccessCode), users: users}
}

func (f *fakeCodeStore) addCode(code string, status models.CodeStatus) *models.AccessCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ac := &models.AccessCode{ID: f.nextID, Code: code, Status: status, SponsorID: 1}
	f.codes[code] = ac
	return ac
}

func (f *fakeCodeStore) FindByCode(_ context.Context, code string) (*models.AccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ac, ok := f.codes[code]
	if !ok {
		return nil, nil
	}
	cp := *ac
	return &cp, nil
}

func (f *fakeCodeStore) Redeem(_ context.Context, codeID, telegramID int64, gptGrant, fetchGrant int) (*models.User, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ac *models.AccessCode
	for _, c := range f.codes {
		if c.ID == codeID {
			ac = c
		}
	}
	if ac == nil || ac.Status != models.CodeStatusNew {
		return nil, false, repository.ErrCodeAlreadyUsed
	}
	now := time.Now()
	ac.Status = models.CodeStatusUsed
	ac.UsedAt = &now

	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	u, ok := f.users.users[telegramID]
	created := !ok
	if !ok {
		f.users.nextID++
		u = &models.User{ID: f.users.nextID, TelegramID: telegramID}
		f.users.users[telegramID] = u
	}
	u.QuotaGPT += gptGrant
	u.QuotaFetch += fetchGrant
	u.AccessCodeID = &ac.ID
	ac.RedeemedBy = &u.ID
	cp := *u
	return &cp, created, nil
}

func (f *fakeCodeStore) Create(_ context.Context, code string, sponsorID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.forceDuplicates > 0 {
		f.forceDuplicates--
		return repository.ErrDuplicate
	}
	if _, exists := f.codes[code]; exists {
		return repository.ErrDuplicate
	}
	f.nextID++
	f.codes[code] = &models.AccessCode{ID: f.nextID, Code: code, Status: models.CodeStatusNew, SponsorID: sponsorID}
	return nil
}

type fakeLimiter struct {
	mu     sync.Mutex
	counts map[string]int
	deny   map[string]bool // bucket → always deny
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{counts: make(map[string]int), deny: make(map[string]bool)}
}

func (f *fakeLimiter) Allow(_ context.Context, bucket, id string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deny[bucket] {
		return false, nil
	}
	key := bucket + ":" + id
	f.counts[key]++
	return f.counts[key] <= limit, nil
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: make(map[string]string)}
}

func (f *fakeCache) Get(_ context.Context, bucket, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.items[bucket+":"+id]
	if !ok {
		return "", kvstore.ErrNotFound
	}
	return v, nil
}

func (f *fakeCache) Set(_ context.Context, bucket, id, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[bucket+":"+id] = value
	return nil
}

type fakeChatClient struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeChatClient) ChatCompletion(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatClient) GenerateImage(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://img.example/" + f.reply, nil
}

func (f *fakeChatClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeFetcher struct {
	result *webfetch.Result
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string) (*webfetch.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &webfetch.Result{URL: rawURL, Title: "Example", Text: "page text"}, nil
}

type fakeUsageLog struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeUsageLog) Log(_ context.Context, _ int64, action, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, action)
	return nil
}

type fakeEnrollmentStore struct {
	mu          sync.Mutex
	enrollments map[string]*models.CourseEnrollment
}

func newFakeEnrollmentStore() *fakeEnrollmentStore {
	return &fakeEnrollmentStore{enrollments: make(map[string]*models.CourseEnrollment)}
}

func enrollKey(userID int64, courseID string) string {
	return fmt.Sprintf("%d|%s", userID, courseID)
}

func (f *fakeEnrollmentStore) Get(_ context.Context, userID int64, courseID string) (*models.CourseEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.enrollments[enrollKey(userID, courseID)]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEnrollmentStore) Create(_ context.Context, userID int64, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := enrollKey(userID, courseID)
	if _, exists := f.enrollments[key]; exists {
		return nil
	}
	f.enrollments[key] = &models.CourseEnrollment{UserID: userID, CourseID: courseID, CompletedModules: "[]"}
	return nil
}

func (f *fakeEnrollmentStore) UpdateModules(_ context.Context, userID int64, courseID, modulesJSON string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.enrollments[enrollKey(userID, courseID)]; ok {
		e.CompletedModules = modulesJSON
	}
	return nil
}

func (f *fakeEnrollmentStore) SetQuizScore(_ context.Context, userID int64, courseID string, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.enrollments[enrollKey(userID, courseID)]; ok {
		if e.QuizScore == nil || *e.QuizScore < score {
			e.QuizScore = &score
		}
	}
	return nil
}

func (f *fakeEnrollmentStore) SetCompletedAt(_ context.Context, userID int64, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.enrollments[enrollKey(userID, courseID)]; ok && e.CompletedAt == nil {
		now := time.Now()
		e.CompletedAt = &now
	}
	return nil
}

func (f *fakeEnrollmentStore) ListByUser(_ context.Context, userID int64) ([]models.CourseEnrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.CourseEnrollment
	for _, e := range f.enrollments {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type fakeCertStore struct {
	mu    sync.Mutex
	byID  map[string]*models.Certificate
	byKey map[string]*models.Certificate
	// collisions holds ids that ExistsCertificateID reports as taken even
	// though no row exists. collideFirst makes the first n lookups collide
	// regardless of id.
	collisions   map[string]bool
	collideFirst int
	existsCalls  int
	createdCount int
}

func newFakeCertStore() *fakeCertStore {
	return &fakeCertStore{
		byID:       make(map[string]*models.Certificate),
		byKey:      make(map[string]*models.Certificate),
		collisions: make(map[string]bool),
	}
}

func (f *fakeCertStore) FindByUserCourse(_ context.Context, userID int64, courseID string) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byKey[enrollKey(userID, courseID)]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCertStore) FindByCertificateID(_ context.Context, certificateID string) (*models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[certificateID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCertStore) ExistsCertificateID(_ context.Context, certificateID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	if f.collideFirst > 0 {
		f.collideFirst--
		return true, nil
	}
	if f.collisions[certificateID] {
		return true, nil
	}
	_, ok := f.byID[certificateID]
	return ok, nil
}

func (f *fakeCertStore) Create(_ context.Context, cert *models.Certificate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := enrollKey(cert.UserID, cert.CourseID)
	if _, dup := f.byID[cert.CertificateID]; dup {
		return repository.ErrDuplicate
	}
	if _, dup := f.byKey[key]; dup {
		return repository.ErrDuplicate
	}
	cp := *cert
	cp.IssuedAt = time.Now()
	f.byID[cert.CertificateID] = &cp
	f.byKey[key] = &cp
	f.createdCount++
	return nil
}

func (f *fakeCertStore) ListByUser(_ context.Context, userID int64) ([]models.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Certificate
	for _, c := range f.byKey {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCertStore) SetDocumentURL(_ context.Context, certificateID, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.byID[certificateID]; ok {
		c.DocumentURL = url
	}
	return nil
}

type fakeSponsorStore struct {
	mu       sync.Mutex
	nextID   int64
	sponsors map[string]*models.Sponsor
}

func newFakeSponsorStore() *fakeSponsorStore {
	return &fakeSponsorStore{sponsors: make(map[string]*models.Sponsor)}
}

func (f *fakeSponsorStore) UpsertByEmail(_ context.Context, email, stripeCustomerID, tier string) (*models.Sponsor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sponsors[email]
	if !ok {
		f.nextID++
		s = &models.Sponsor{ID: f.nextID, Email: email}
		f.sponsors[email] = s
	}
	s.StripeCustomerID = stripeCustomerID
	s.SubscriptionTier = tier
	cp := *s
	return &cp, nil
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*models.Payment)}
}

func (f *fakePaymentStore) Create(_ context.Context, p *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.payments[p.StripeSessionID]; dup {
		return repository.ErrDuplicate
	}
	cp := *p
	f.payments[p.StripeSessionID] = &cp
	return nil
}

func (f *fakePaymentStore) FindBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

type fakeMailer struct {
	mu            sync.Mutex
	codeBatches   [][]string
	welcomesSent  []string
	failWithError error
}

func (f *fakeMailer) SendAccessCodes(_, _ string, codes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWithError != nil {
		return f.failWithError
	}
	f.codeBatches = append(f.codeBatches, codes)
	return nil
}

func (f *fakeMailer) SendBootcampWelcome(to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.welcomesSent = append(f.welcomesSent, to)
	return nil
}

type fakeDocStore struct {
	uploads int
	err     error
}

func (f *fakeDocStore) UploadCertificate(_ context.Context, certificateID string, _ []byte) (string, error) {
	f.uploads++
	if f.err != nil {
		return "", f.err
	}
	return "https://files.example/certificates/" + certificateID + ".txt", nil
}

var errUpstream = errors.New("upstream unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
