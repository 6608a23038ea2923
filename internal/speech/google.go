package speech

import (
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"
)

// Google - синтез через Google Cloud Text-to-Speech.
// Ключ берётся из GOOGLE_APPLICATION_CREDENTIALS.
type Google struct {
	client *texttospeech.Client
	lang   string
}

func NewGoogle(ctx context.Context, defaultLang string) (*Google, error) {
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create google tts client: %w", err)
	}
	return &Google{client: client, lang: defaultLang}, nil
}

func (g *Google) Name() string { return "google" }

func (g *Google) Close() error { return g.client.Close() }

func (g *Google) Synthesize(ctx context.Context, req Request) (Audio, error) {
	req, err := normalize(req, g.lang)
	if err != nil {
		return Audio{}, err
	}

	resp, err := g.client.SynthesizeSpeech(ctx, googleRequest(req))
	if err != nil {
		return Audio{}, fmt.Errorf("SynthesizeSpeech: %w", err)
	}
	return Audio{Data: resp.AudioContent, ContentType: "audio/mpeg"}, nil
}

// googleRequest - стандартный (не Wavenet) голос, он входит в бесплатный лимит.
func googleRequest(req Request) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Lang,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}
}
