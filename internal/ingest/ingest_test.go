package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/domain/promo"
)

func TestParse(t *testing.T) {
	input := `# code,kind,value,min_subtotal,max_discount,max_uses,valid_from,valid_until,description
save10, fixed, 10
spring,PERCENTAGE,15,50,20,1000,2026-03-01T00:00:00Z,2026-06-01T00:00:00Z,"15% off, up to $20"
`
	rules, err := Parse(context.Background(), "inline", strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "SAVE10", rules[0].Code)
	assert.Equal(t, promo.KindFixed, rules[0].Kind)
	assert.True(t, decimal.NewFromInt(10).Equal(rules[0].Value))
	assert.True(t, rules[0].MinSubtotal.IsZero())
	assert.Nil(t, rules[0].ValidFrom)

	spring := rules[1]
	assert.Equal(t, promo.KindPercentage, spring.Kind)
	assert.True(t, decimal.NewFromInt(50).Equal(spring.MinSubtotal))
	assert.True(t, decimal.NewFromInt(20).Equal(spring.MaxDiscount))
	assert.Equal(t, 1000, spring.MaxUses)
	require.NotNil(t, spring.ValidUntil)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *spring.ValidUntil)
	assert.Equal(t, "15% off, up to $20", spring.Description)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{name: "too few fields", input: "CODE,fixed", wantErr: "want 3 to 9 fields"},
		{name: "unknown kind", input: "CODE,free_lowest,0", wantErr: "unknown kind"},
		{name: "bad value", input: "CODE,fixed,ten", wantErr: "value"},
		{name: "negative", input: "CODE,fixed,-5", wantErr: "negative amount"},
		{name: "over 100 percent", input: "CODE,percentage,101", wantErr: "exceeds 100"},
		{name: "bad max uses", input: "CODE,fixed,1,,,-1", wantErr: "max_uses"},
		{name: "window inverted", input: "CODE,fixed,1,,,,2026-02-01T00:00:00Z,2026-01-01T00:00:00Z", wantErr: "before valid_from"},
		{name: "empty code", input: " ,fixed,1", wantErr: "empty code"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), "inline", strings.NewReader("OK,fixed,1\n"+tt.input+"\n"))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			var le *LineError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, 2, le.Line)
		})
	}
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "promos1.csv.gz")
	second := filepath.Join(dir, "promos2.csv")

	writeGzip(t, first, "SAVE10,fixed,10\nHALF,percentage,50\n")
	require.NoError(t, os.WriteFile(second, []byte("save10,fixed,12\nNEW,fixed,1\n"), 0o600))

	rules, err := Files(context.Background(), zap.NewNop(), []string{first, second})
	require.NoError(t, err)
	require.Len(t, rules, 3)

	byCode := make(map[string]promo.Rule)
	for _, r := range rules {
		byCode[r.Code] = r
	}
	assert.True(t, decimal.NewFromInt(12).Equal(byCode["SAVE10"].Value), "later file wins")
	assert.Contains(t, byCode, "HALF")
	assert.Contains(t, byCode, "NEW")
}

func TestFiles_MissingFile(t *testing.T) {
	_, err := Files(context.Background(), zap.NewNop(), []string{filepath.Join(t.TempDir(), "nope.gz")})
	require.Error(t, err)
}
