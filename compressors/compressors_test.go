package compressors

import (
	"bytes"
	"io"
	"testing"

	"github.com/INLOpen/nexuslake/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressors_RoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte("bucket-0 hash index"),
		"repetitive": bytes.Repeat([]byte("abcd"), 4096),
		"binary":     {0, 1, 2, 3, 255, 254, 253, 0, 0, 0, 7},
	}
	for _, ct := range []core.CompressionType{core.CompressionNone, core.CompressionSnappy, core.CompressionLZ4, core.CompressionZSTD} {
		c, err := ForType(ct)
		require.NoError(t, err)
		require.Equal(t, ct, c.Type())

		for name, data := range payloads {
			t.Run(ct.String()+"/"+name, func(t *testing.T) {
				compressed, err := c.Compress(data)
				require.NoError(t, err)
				rc, err := c.Decompress(compressed)
				require.NoError(t, err)
				got, err := io.ReadAll(rc)
				require.NoError(t, err)
				require.NoError(t, rc.Close())
				assert.Equal(t, len(data), len(got))
				assert.True(t, bytes.Equal(data, got))

				var buf bytes.Buffer
				buf.WriteString("stale")
				require.NoError(t, c.CompressTo(&buf, data))
				rc, err = c.Decompress(buf.Bytes())
				require.NoError(t, err)
				got, err = io.ReadAll(rc)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(data, got))
			})
		}
	}
}

func TestParseType(t *testing.T) {
	c, err := ParseType("LZ4")
	require.NoError(t, err)
	assert.Equal(t, core.CompressionLZ4, c.Type())

	c, err = ParseType("")
	require.NoError(t, err)
	assert.Equal(t, core.CompressionNone, c.Type())

	_, err = ParseType("brotli")
	require.Error(t, err)
	assert.True(t, core.IsValidationError(err))

	_, err = ForType(core.CompressionType(42))
	require.Error(t, err)
}

func TestLZ4_CorruptPayload(t *testing.T) {
	_, err := NewLz4Compressor().Decompress(nil)
	require.Error(t, err)
}
