package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaDeclaresConsistencyConstraints(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.Equal(t, "0001_init.sql", names[0])

	body, err := Files.ReadFile(names[0])
	require.NoError(t, err)
	schema := string(body)
	for _, want := range []string{
		"CONSTRAINT products_stock_nonnegative CHECK (stock >= 0)",
		"CONSTRAINT products_code_key UNIQUE (code)",
		"CONSTRAINT sales_number_key UNIQUE (number)",
		"CONSTRAINT purchases_number_key UNIQUE (number)",
		"PRIMARY KEY (kind, scope_key)",
		"CREATE TABLE IF NOT EXISTS stock_movements",
		"CREATE TABLE IF NOT EXISTS idempotency_keys",
		"PRIMARY KEY (key, module)",
		"CONSTRAINT customers_tax_id_key UNIQUE (tax_id)",
		"CONSTRAINT suppliers_tax_id_key UNIQUE (tax_id)",
	} {
		require.True(t, strings.Contains(schema, want), "schema missing %q", want)
	}
}
