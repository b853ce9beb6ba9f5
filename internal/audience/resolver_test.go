package audience

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixhub/workshop-backend/internal/model"
)

// fakeCustomerRepo returns a fixed customer set; the filter push-down itself
// belongs to the repository and is not under test here.
type fakeCustomerRepo struct {
	customers []model.Customer
	err       error
}

func (f *fakeCustomerRepo) FindByFilter(spec model.FilterSpec, now time.Time) ([]model.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.customers, nil
}

func testResolver(customers ...model.Customer) *Resolver {
	return NewResolver(&fakeCustomerRepo{customers: customers}, "90", zerolog.Nop())
}

func customer(id int, name, phone string) model.Customer {
	return model.Customer{ID: id, Name: name, Phone: phone, Type: model.CustomerIndividual}
}

func TestResolveOrdersCustomersThenManual(t *testing.T) {
	r := testResolver(
		customer(1, "Ali Kaya", "05321112233"),
		customer(2, "Merve Demir", "05334445566"),
	)
	spec := model.FilterSpec{ManualNumbers: []string{"0544 777 88 99"}}

	entries, err := r.Resolve(spec, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "905321112233", entries[0].Phone)
	require.NotNil(t, entries[0].CustomerID)
	assert.Equal(t, 1, *entries[0].CustomerID)
	assert.Equal(t, "905334445566", entries[1].Phone)
	assert.Equal(t, "905447778899", entries[2].Phone)
	assert.Nil(t, entries[2].CustomerID, "manual numbers carry no customer link")
}

func TestResolveIsDeterministic(t *testing.T) {
	r := testResolver(
		customer(1, "Ali Kaya", "05321112233"),
		customer(2, "Merve Demir", "05334445566"),
	)
	spec := model.FilterSpec{ManualNumbers: []string{"05447778899", "05321119999"}}
	now := time.Now()

	first, err := r.Resolve(spec, now)
	require.NoError(t, err)
	second, err := r.Resolve(spec, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestManualNumberMatchingCustomerDeduplicates(t *testing.T) {
	r := testResolver(customer(1, "Ali Kaya", "05321112233"))
	// Same phone in a different spelling.
	spec := model.FilterSpec{ManualNumbers: []string{"+90 532 111 22 33"}}

	entries, err := r.Resolve(spec, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1, "one phone, one target")
	require.NotNil(t, entries[0].CustomerID, "the customer-linked entry wins")
	assert.Equal(t, 1, *entries[0].CustomerID)
}

func TestInvalidManualNumbersAreSkippedSilently(t *testing.T) {
	r := testResolver()
	spec := model.FilterSpec{ManualNumbers: []string{"not a phone", "123", "05447778899"}}

	entries, err := r.Resolve(spec, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "905447778899", entries[0].Phone)

	preview, err := r.Preview(spec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, preview.ManualCount, "invalid entries are excluded from the count")
}

func TestDuplicateCustomerPhonesCollapse(t *testing.T) {
	r := testResolver(
		customer(1, "Ali Kaya", "05321112233"),
		customer(2, "Ali K.", "0532 111 2233"),
	)

	entries, err := r.Resolve(model.FilterSpec{}, time.Now())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, *entries[0].CustomerID, "first customer in id order wins")
}

func TestPreviewSampleAndCounts(t *testing.T) {
	customers := make([]model.Customer, 0, 8)
	for i := 0; i < 8; i++ {
		customers = append(customers, customer(i+1, "Customer", "053211122"+string(rune('0'+i))+"3"))
	}
	r := testResolver(customers...)
	spec := model.FilterSpec{ManualNumbers: []string{"05447778899"}}

	preview, err := r.Preview(spec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 8, preview.TotalCustomers)
	assert.Len(t, preview.Sample, 5)
	assert.Equal(t, 1, preview.ManualCount)
	require.Len(t, preview.ManualTargets, 1)
	assert.Equal(t, "905447778899", preview.ManualTargets[0].Phone)
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := NewResolver(&fakeCustomerRepo{err: storeErr}, "90", zerolog.Nop())

	_, err := r.Resolve(model.FilterSpec{}, time.Now())
	assert.ErrorIs(t, err, storeErr)
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"05321112233", "905321112233", true},
		{"+90 532 111 22 33", "905321112233", true},
		{"0090 532 111 22 33", "905321112233", true},
		{"5321112233", "905321112233", true},
		{"905321112233", "905321112233", true},
		{"123", "", false},
		{"", "", false},
		{"not a phone", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizePhone(tc.in, "90")
		assert.Equal(t, tc.ok, ok, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
