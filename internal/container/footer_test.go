package container

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleHeader() FileHeader {
	return FileHeader{
		AppVersion:       "0.1.0",
		FormatVersion:    CurrentFormatVersion,
		OriginalFilename: "report.csv",
		OriginalSize:     4096,
		OriginalChecksum: "aa",
		OutputChecksum:   "bb",
		ProcessingSteps: []ProcessingStep{
			{StepType: StepType{Kind: "Compression"}, Algorithm: "gzip", Parameters: map[string]string{}, Order: 1},
		},
		ChunkSize:   1024,
		ChunkCount:  4,
		ProcessedAt: "2026-01-01T00:00:00Z",
		PipelineID:  "pipeline-1",
	}
}

func TestEncodeDecodeFooter_RoundTrips(t *testing.T) {
	h := sampleHeader()
	encoded, err := EncodeFooter(h)
	require.NoError(t, err)

	fileBytes := append([]byte("chunk-region-bytes"), encoded...)
	decoded, footerLen, err := DecodeFooter(fileBytes)
	require.NoError(t, err)

	assert.Equal(t, h.OriginalFilename, decoded.OriginalFilename)
	assert.Equal(t, h.PipelineID, decoded.PipelineID)
	assert.Equal(t, len(encoded), footerLen)
}

func TestDecodeFooter_RejectsBadMagic(t *testing.T) {
	h := sampleHeader()
	encoded, err := EncodeFooter(h)
	require.NoError(t, err)
	encoded[len(encoded)-1] ^= 0xFF

	_, _, err = DecodeFooter(encoded)
	assert.Error(t, err)
}

func TestDecodeFooter_RejectsTruncatedFile(t *testing.T) {
	_, _, err := DecodeFooter([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestDecodeFooter_RejectsFutureFormatVersion(t *testing.T) {
	h := sampleHeader()
	h.FormatVersion = CurrentFormatVersion + 1
	encoded, err := EncodeFooter(h)
	require.NoError(t, err)

	_, _, err = DecodeFooter(encoded)
	assert.Error(t, err)
}

func TestFileHeader_Validate_ChunkCountConsistency(t *testing.T) {
	h := sampleHeader()
	h.OriginalSize = 0
	h.ChunkCount = 1
	assert.Error(t, h.Validate())

	h.ChunkCount = 0
	assert.NoError(t, h.Validate())
}

func TestStepType_CustomRoundTrip(t *testing.T) {
	st := StepType{Kind: "Custom", Custom: "widgetize"}
	data, err := st.MarshalJSON()
	require.NoError(t, err)

	var decoded StepType
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, "Custom", decoded.Kind)
	assert.Equal(t, "widgetize", decoded.Custom)
}
