package featuregate

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalCatalog = `
tiers:
  trial:
    limits: {maxBookingsPerMonth: 5, maxTeamMembers: 1}
  starter:
    capabilities: {hasSmsReminders: true}
    limits: {maxBookingsPerMonth: 50, maxTeamMembers: 2}
  growth:
    capabilities: {hasMarketingTools: true}
    limits: {maxBookingsPerMonth: 500, maxTeamMembers: -1}
  premium:
    capabilities: {hasMarketingTools: true, hasPayroll: true}
    limits: {maxBookingsPerMonth: unlimited, maxTeamMembers: UNLIMITED}
prices:
  price_abc: growth
`

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(minimalCatalog))
	require.NoError(t, err)

	assert.Equal(t, Ceiling(5), c.Tiers[TierTrial].Limits[MaxBookingsPerMonth])
	assert.True(t, c.Tiers[TierGrowth].Limits[MaxTeamMembers].IsUnlimited())
	assert.True(t, c.Tiers[TierPremium].Limits[MaxTeamMembers].IsUnlimited())
	assert.Equal(t, TierGrowth, c.Tiers[TierGrowth].Tier)
	assert.Equal(t, TierGrowth, c.Prices["price_abc"])

	g := New(c)
	assert.False(t, g.Has(TierTrial, HasSmsReminders))
	assert.True(t, g.Has(TierStarter, HasSmsReminders))
}

func TestParseCatalog_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing tier": `
tiers:
  trial: {limits: {maxBookingsPerMonth: 1, maxTeamMembers: 1}}
  starter: {limits: {maxBookingsPerMonth: 1, maxTeamMembers: 1}}
  growth: {limits: {maxBookingsPerMonth: 1, maxTeamMembers: 1}}
`,
		"unknown capability": strings.Replace(minimalCatalog, "hasPayroll", "hasTeleport", 1),
		"missing limit":      strings.Replace(minimalCatalog, "maxBookingsPerMonth: 5, ", "", 1),
		"negative ceiling":   strings.Replace(minimalCatalog, "maxBookingsPerMonth: 500", "maxBookingsPerMonth: -5", 1),
		"bad ceiling":        strings.Replace(minimalCatalog, "maxBookingsPerMonth: 500", "maxBookingsPerMonth: lots", 1),
		"price to bad tier":  strings.Replace(minimalCatalog, "price_abc: growth", "price_abc: gold", 1),
		"extra tier":         strings.Replace(minimalCatalog, "prices:", "  enterprise: {}\nprices:", 1),
		"not yaml":           "tiers: [",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog), err.Error())
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	for _, tier := range Tiers() {
		assert.Contains(t, c.Tiers, tier)
	}
	loaded, err := EmbeddedSource().Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestWithPrices(t *testing.T) {
	c, err := DefaultCatalog().WithPrices(map[string]string{
		"price_live_123": "Premium",
		"":               "growth",
	})
	require.NoError(t, err)
	assert.Equal(t, TierPremium, New(c).ResolveTier("price_live_123"))
	assert.Equal(t, TierTrial, New(c).ResolveTier(""))
	assert.Equal(t, TierTrial, New(nil).ResolveTier("price_live_123"))

	_, err = DefaultCatalog().WithPrices(map[string]string{"price_x": "diamond"})
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalCatalog), 0o644))

	c, err := FileSource(path).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TierGrowth, New(c).ResolveTier("price_abc"))

	_, err = FileSource(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string]string
	input   *s3.GetObjectInput
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Source(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"config-bucket/plans/v2.yaml": minimalCatalog}}

	c, err := S3Source(client, "config-bucket", "plans/v2.yaml").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "config-bucket", aws.ToString(client.input.Bucket))
	assert.Equal(t, Ceiling(50), c.Tiers[TierStarter].Limits[MaxBookingsPerMonth])

	_, err = S3Source(client, "config-bucket", "plans/missing.yaml").Load(context.Background())
	assert.ErrorContains(t, err, "s3://config-bucket/plans/missing.yaml")
}
