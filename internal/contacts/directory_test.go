package contacts

import (
	"context"
	"errors"
	"testing"

	"wisefido-sos/internal/errs"
	"wisefido-sos/internal/models"
	"wisefido-sos/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStore 内存联系人存储
type fakeStore struct {
	contacts []models.Contact
	saveErr  error
	saves    int
}

func (f *fakeStore) GetContacts(ctx context.Context) ([]models.Contact, error) {
	out := make([]models.Contact, len(f.contacts))
	copy(out, f.contacts)
	return out, nil
}

func (f *fakeStore) SaveContacts(ctx context.Context, contacts []models.Contact) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saves++
	f.contacts = make([]models.Contact, len(contacts))
	copy(f.contacts, contacts)
	return nil
}

func newTestDirectory(st Store) *Directory {
	return NewDirectory(st, Options{CountryCode: "+57", NameMin: 2, NameMax: 50, MaxContacts: 10}, zap.NewNop())
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"3123456789", "+573123456789"},
		{"312 345 6789", "+573123456789"},
		{"(312) 345-6789", "+573123456789"},
		{"6012345", "+576012345"},
		{"+1 (415) 555-0100", "+14155550100"},
		{"12345678", "12345678"},
		{"573123456789", "573123456789"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in, "+57"))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"3123456789", "6012345", "+573123456789", "12345", "abc", "",
		"(601) 234-5678", "  300 1112233 ", "+", "12+34567", "0000000",
	}
	for _, p := range inputs {
		once := Normalize(p, "+57")
		assert.Equal(t, once, Normalize(once, "+57"), "input %q", p)
	}
}

func TestValidator_CollectsAllFields(t *testing.T) {
	v := Validator{NameMin: 2, NameMax: 50}

	err := v.Validate(models.ContactInput{Name: " A ", Phone: "12ab", Email: "nope"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))

	var e *errs.Error
	require.True(t, errors.As(err, &e))
	fields := map[string]bool{}
	for _, f := range e.Fields {
		fields[f.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["phone"])
	assert.True(t, fields["email"])
}

func TestValidator_Accepts(t *testing.T) {
	v := Validator{NameMin: 2, NameMax: 50}
	assert.NoError(t, v.Validate(models.ContactInput{Name: "María", Phone: "(312) 345-6789"}))
	assert.NoError(t, v.Validate(models.ContactInput{Name: "Jo", Phone: "+14155550100", Email: "jo@example.com"}))
}

func TestAdd_Success(t *testing.T) {
	st := &fakeStore{}
	dir := newTestDirectory(st)

	c, err := dir.Add(context.Background(), models.ContactInput{Name: "  Ana  ", Phone: "312-345-6789"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Ana", c.Name)
	assert.Equal(t, "+573123456789", c.Phone)
	assert.Equal(t, models.DefaultRelation, c.Relation)
	assert.True(t, c.IsActive)
	assert.Len(t, st.contacts, 1)
}

func TestAdd_ValidationNoWrite(t *testing.T) {
	st := &fakeStore{}
	dir := newTestDirectory(st)

	_, err := dir.Add(context.Background(), models.ContactInput{Name: "", Phone: ""})
	assert.True(t, errs.IsKind(err, errs.KindValidation))
	assert.Equal(t, 0, st.saves)
}

func TestAdd_DuplicateRejected(t *testing.T) {
	st := &fakeStore{}
	dir := newTestDirectory(st)
	ctx := context.Background()

	_, err := dir.Add(ctx, models.ContactInput{Name: "Ana", Phone: "3123456789"})
	require.NoError(t, err)
	before := append([]models.Contact(nil), st.contacts...)

	// 不同写法，规范化后相同
	_, err = dir.Add(ctx, models.ContactInput{Name: "Otra", Phone: "+57 312 345 6789"})
	assert.True(t, errs.IsKind(err, errs.KindDuplicate))
	assert.Equal(t, before, st.contacts)
}

func TestAdd_MaxContacts(t *testing.T) {
	st := &fakeStore{}
	dir := NewDirectory(st, Options{CountryCode: "+57", MaxContacts: 1}, zap.NewNop())
	ctx := context.Background()

	_, err := dir.Add(ctx, models.ContactInput{Name: "Ana", Phone: "3123456789"})
	require.NoError(t, err)

	_, err = dir.Add(ctx, models.ContactInput{Name: "Luis", Phone: "3001112233"})
	require.Error(t, err)
	var e *errs.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, errs.KindValidation, e.Kind)
	assert.Equal(t, "contacts", e.Fields[0].Field)
}

func TestEdit_ExcludesSelfFromDuplicateCheck(t *testing.T) {
	st := &fakeStore{}
	dir := newTestDirectory(st)
	ctx := context.Background()

	ana, err := dir.Add(ctx, models.ContactInput{Name: "Ana", Phone: "3123456789"})
	require.NoError(t, err)
	luis, err := dir.Add(ctx, models.ContactInput{Name: "Luis", Phone: "3001112233"})
	require.NoError(t, err)

	// 保留自己的号码
	edited, err := dir.Edit(ctx, ana.ID, models.ContactInput{Name: "Ana María", Phone: "3123456789", Relation: "Hermana"})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", edited.Name)
	assert.Equal(t, "Hermana", edited.Relation)
	assert.NotNil(t, edited.UpdatedAt)

	// 改成别人的号码
	_, err = dir.Edit(ctx, ana.ID, models.ContactInput{Name: "Ana", Phone: "300 111 2233"})
	assert.True(t, errs.IsKind(err, errs.KindDuplicate))

	_, err = dir.Edit(ctx, "missing", models.ContactInput{Name: "Ana", Phone: "3123456789"})
	assert.True(t, errs.IsKind(err, errs.KindNotFound))

	got, err := dir.Get(ctx, luis.ID)
	require.NoError(t, err)
	assert.Equal(t, "+573001112233", got.Phone)
}

func TestRemoveAndStats(t *testing.T) {
	st := &fakeStore{}
	dir := newTestDirectory(st)
	ctx := context.Background()

	stats, err := dir.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.IsConfigured)
	assert.False(t, stats.HasContacts)

	a, _ := dir.Add(ctx, models.ContactInput{Name: "Ana", Phone: "3123456789"})
	b, _ := dir.Add(ctx, models.ContactInput{Name: "Luis", Phone: "3001112233"})

	_, err = dir.SetActive(ctx, b.ID, false)
	require.NoError(t, err)

	stats, err = dir.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.ContactStats{Total: 2, Active: 1, Inactive: 1, HasContacts: true, IsConfigured: true}, stats)

	active, err := dir.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)

	require.NoError(t, dir.Remove(ctx, a.ID))
	assert.True(t, errs.IsKind(dir.Remove(ctx, a.ID), errs.KindNotFound))

	stats, err = dir.Stats(ctx)
	require.NoError(t, err)
	assert.False(t, stats.IsConfigured)
	assert.Equal(t, 1, stats.Total)
}

func TestAdd_SaveError(t *testing.T) {
	st := &fakeStore{saveErr: errors.New("disk full")}
	dir := newTestDirectory(st)

	_, err := dir.Add(context.Background(), models.ContactInput{Name: "Ana", Phone: "3123456789"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save contacts")
}

func TestDirectory_WithRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storage := store.NewStorage(store.NewRedisKV(client), "sos:", zap.NewNop())
	dir := newTestDirectory(storage)
	ctx := context.Background()

	_, err := dir.Add(ctx, models.ContactInput{Name: "Ana", Phone: "3123456789", Email: "ana@example.com"})
	require.NoError(t, err)

	// 新目录实例从同一存储读出
	reloaded := newTestDirectory(storage)
	list, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ana@example.com", list[0].Email)
}
