// Package container implements the ".adapipe" on-disk format: the
// dense chunk region, per-chunk record framing, and the trailing JSON
// footer with its fixed 14-byte tail.
package container

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/kenneth/adapipe/internal/pipelineerr"
)

const (
	CurrentFormatVersion = 1
	MinChunkSize         = 1024
	trailerLen           = 14
)

var magic = [8]byte{'A', 'D', 'A', 'P', 'I', 'P', 'E', 0x00}

// StepType is the footer's step_type enum, including the open
// "Custom" variant, which marshals as {"Custom": "<name>"} instead of
// a bare string.
type StepType struct {
	Kind   string // "Compression", "Encryption", "Checksum", "PassThrough", "Custom"
	Custom string // populated only when Kind == "Custom"
}

func (t StepType) MarshalJSON() ([]byte, error) {
	if t.Kind == "Custom" {
		return json.Marshal(map[string]string{"Custom": t.Custom})
	}
	return json.Marshal(t.Kind)
}

func (t *StepType) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		t.Kind = plain
		t.Custom = ""
		return nil
	}
	var custom struct {
		Custom string `json:"Custom"`
	}
	if err := json.Unmarshal(data, &custom); err != nil {
		return fmt.Errorf("step_type: %w", err)
	}
	t.Kind = "Custom"
	t.Custom = custom.Custom
	return nil
}

// ProcessingStep records one applied stage's shape in the footer.
type ProcessingStep struct {
	StepType   StepType          `json:"step_type"`
	Algorithm  string            `json:"algorithm"`
	Parameters map[string]string `json:"parameters"`
	Order      uint32            `json:"order"`
}

// FileHeader is the footer JSON object.
type FileHeader struct {
	AppVersion        string            `json:"app_version"`
	FormatVersion     uint16            `json:"format_version"`
	OriginalFilename  string            `json:"original_filename"`
	OriginalSize      uint64            `json:"original_size"`
	OriginalChecksum  string            `json:"original_checksum"`
	OutputChecksum    string            `json:"output_checksum"`
	ProcessingSteps   []ProcessingStep  `json:"processing_steps"`
	ChunkSize         uint32            `json:"chunk_size"`
	ChunkCount        uint32            `json:"chunk_count"`
	ProcessedAt       string            `json:"processed_at"`
	PipelineID        string            `json:"pipeline_id"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Validate enforces the read-time footer checks.
func (h FileHeader) Validate() error {
	if h.FormatVersion > CurrentFormatVersion {
		return pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("format_version %d exceeds supported version %d", h.FormatVersion, CurrentFormatVersion))
	}
	if h.ChunkSize < MinChunkSize {
		return pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("chunk_size %d below minimum %d", h.ChunkSize, MinChunkSize))
	}
	if h.OriginalSize > 0 && h.ChunkCount == 0 {
		return pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("chunk_count must be nonzero when original_size > 0"))
	}
	if h.OriginalSize == 0 && h.ChunkCount != 0 {
		return pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("chunk_count must be zero when original_size is 0"))
	}
	for _, step := range h.ProcessingSteps {
		if step.Algorithm == "" {
			return pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("processing step %q has an empty algorithm", step.StepType.Kind))
		}
	}
	return nil
}

// EncodeFooter serialises header as json_bytes || LE32(len) || LE16(version) || magic.
func EncodeFooter(h FileHeader) ([]byte, error) {
	jsonBytes, err := json.Marshal(h)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.SerializationError, "footer", fmt.Errorf("marshal footer: %w", err))
	}
	buf := make([]byte, 0, len(jsonBytes)+trailerLen)
	buf = append(buf, jsonBytes...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(jsonBytes)))
	buf = append(buf, lenBuf[:]...)

	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], h.FormatVersion)
	buf = append(buf, verBuf[:]...)

	buf = append(buf, magic[:]...)
	return buf, nil
}

// DecodeFooter parses the trailing footer out of a full container
// file's bytes: magic first, then version, then JSON length. It returns
// the parsed header and the length of the footer region (14+L), which
// the caller subtracts from file length to find the chunk region end.
func DecodeFooter(fileBytes []byte) (FileHeader, int, error) {
	n := len(fileBytes)
	if n < trailerLen {
		return FileHeader{}, 0, pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("file too small (%d bytes) to contain a trailer", n))
	}
	tail := fileBytes[n-8:]
	for i := range magic {
		if tail[i] != magic[i] {
			return FileHeader{}, 0, pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("invalid magic bytes"))
		}
	}
	version := binary.LittleEndian.Uint16(fileBytes[n-10 : n-8])
	if version > CurrentFormatVersion {
		return FileHeader{}, 0, pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("format_version %d exceeds supported version %d", version, CurrentFormatVersion))
	}
	jsonLen := binary.LittleEndian.Uint32(fileBytes[n-14 : n-10])
	footerLen := trailerLen + int(jsonLen)
	if footerLen > n {
		return FileHeader{}, 0, pipelineerr.New(pipelineerr.ValidationError, "footer", fmt.Errorf("footer length %d exceeds file size %d", footerLen, n))
	}
	jsonBytes := fileBytes[n-footerLen : n-trailerLen]
	var h FileHeader
	if err := json.Unmarshal(jsonBytes, &h); err != nil {
		return FileHeader{}, 0, pipelineerr.New(pipelineerr.SerializationError, "footer", fmt.Errorf("unmarshal footer json: %w", err))
	}
	if err := h.Validate(); err != nil {
		return FileHeader{}, 0, err
	}
	return h, footerLen, nil
}
