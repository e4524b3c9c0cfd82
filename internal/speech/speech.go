// Package speech synthesizes narration audio for discussion entries.
package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"html"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Synthesizer produces a spoken audio file for an entry's narration text and
// reports its duration in seconds.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, isMale bool) (wav []byte, seconds float64, err error)
}

// Entries with no readable text still need an audio slot in the video.
const placeholderText = "Placeholder"

// AzureSynthesizer talks to the Azure Cognitive Services speech REST
// endpoint.
type AzureSynthesizer struct {
	endpoint    string
	apiKey      string
	maleVoice   string
	femaleVoice string
	client      *resty.Client
}

// Ensure AzureSynthesizer implements Synthesizer
var _ Synthesizer = (*AzureSynthesizer)(nil)

// NewAzureSynthesizer creates a synthesizer for a regional speech endpoint.
func NewAzureSynthesizer(region, endpoint, apiKey, maleVoice, femaleVoice string) *AzureSynthesizer {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region)
	}

	return &AzureSynthesizer{
		endpoint:    endpoint,
		apiKey:      apiKey,
		maleVoice:   maleVoice,
		femaleVoice: femaleVoice,
		client:      resty.New().SetTimeout(60 * time.Second),
	}
}

// IsEnabled reports whether credentials are configured.
func (s *AzureSynthesizer) IsEnabled() bool {
	return s.apiKey != ""
}

// Synthesize renders text to RIFF PCM audio with a voice matching the
// entry author's gender signal.
func (s *AzureSynthesizer) Synthesize(ctx context.Context, text string, isMale bool) ([]byte, float64, error) {
	if text == "" || text == ":" || text == ": " {
		text = placeholderText
	}

	voice := s.femaleVoice
	if isMale {
		voice = s.maleVoice
	}

	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='pl-PL'><voice name='%s'>%s</voice></speak>`,
		voice, html.EscapeString(text))

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Ocp-Apim-Subscription-Key", s.apiKey).
		SetHeader("Content-Type", "application/ssml+xml").
		SetHeader("X-Microsoft-OutputFormat", "riff-24khz-16bit-mono-pcm").
		SetBody(ssml).
		Post(s.endpoint)

	if err != nil {
		return nil, 0, fmt.Errorf("speech request failed: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, 0, fmt.Errorf("speech service returned status %d", resp.StatusCode())
	}

	wav := resp.Body()

	seconds, err := WavDuration(wav)
	if err != nil {
		logrus.Errorf("Could not read WAV duration: %v", err)
		seconds = 0
	}

	return wav, seconds, nil
}

// WavDuration computes the play length of a RIFF PCM file from its header:
// data chunk size divided by byte rate.
func WavDuration(wav []byte) (float64, error) {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, fmt.Errorf("not a RIFF WAVE file")
	}

	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	if byteRate == 0 {
		return 0, fmt.Errorf("zero byte rate")
	}

	// Scan chunks for the data chunk; fmt is not always the only one
	// before it.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		if chunkID == "data" {
			return float64(chunkSize) / float64(byteRate), nil
		}

		offset += 8 + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	return 0, fmt.Errorf("no data chunk found")
}
