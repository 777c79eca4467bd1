package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Assistant is the AI backend behind the terminology, medication, practice
// and ethics features. Its answers are opaque text to the rest of the app.
type Assistant interface {
	TranslateTerm(ctx context.Context, req TermTranslation) (string, error)
	SearchTerm(ctx context.Context, term, targetLanguage string) (string, error)
	TranslateMedication(ctx context.Context, req MedicationQuery) (*MedicationInfo, error)
	PracticeScenario(ctx context.Context, req ScenarioRequest) (string, error)
	EvaluatePerformance(ctx context.Context, req EvaluationRequest) (*Evaluation, error)
	ConsultEthics(ctx context.Context, history []ChatMessage) (string, error)
}

// TermTranslation asks for a term, and optionally its definition, in
// another language.
type TermTranslation struct {
	Term           string `json:"term"`
	Definition     string `json:"definition,omitempty"`
	TargetLanguage string `json:"target_language"`
}

// MedicationQuery asks for a medication name in another language.
type MedicationQuery struct {
	Medication     string `json:"medication"`
	TargetLanguage string `json:"target_language"`
	Premium        bool   `json:"include_premium_info"`
}

// MedicationInfo is the structured answer to a MedicationQuery.
type MedicationInfo struct {
	MedicationName    string   `json:"medication_name"`
	DirectTranslation string   `json:"direct_translation"`
	TargetLanguage    string   `json:"target_language"`
	GenericNames      []string `json:"generic_names,omitempty"`
	BrandNames        []string `json:"brand_names,omitempty"`
	AlternativeNames  []string `json:"alternative_names,omitempty"`
}

// ScenarioRequest describes the practice scenario to generate.
type ScenarioRequest struct {
	ScenarioType   string `json:"scenario_type"`
	TargetLanguage string `json:"target_language"`
	Difficulty     string `json:"difficulty,omitempty"`
	ProviderAccent string `json:"provider_accent,omitempty"`
}

// EvaluationRequest is a transcript to grade.
type EvaluationRequest struct {
	Transcript     string `json:"transcript"`
	ScenarioType   string `json:"scenario_type"`
	TargetLanguage string `json:"target_language"`
}

// Evaluation is a graded transcript.
type Evaluation struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

// ChatMessage is one turn of an ethics consultation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

const (
	defaultScore = 75

	standards = "IMIA, CCHI, NBCMI, NCIHC, CLAS and CHIA"
)

var (
	scorePattern = regexp.MustCompile(`(?i)score[:\s*]*(\d+)`)
	jsonPattern  = regexp.MustCompile(`(?s)\{.*\}`)
)

func translateTermPrompt(lang string) string {
	return fmt.Sprintf(`You are a terminology expert for medical interpreters.
Translate medical and interpreting terminology from English to %s accurately, adding cultural context where it matters.`, lang)
}

func searchTermPrompt(lang string) string {
	return fmt.Sprintf(`You are a medical terminology expert. Answer with exactly these lines and no markdown:
TERM (ENGLISH): <term in English>
TERM (%s): <term in the target language>
DEFINITION: <a clear medical definition in one or two sentences>
PRONUNCIATION: <phonetic guide>`, strings.ToUpper(lang))
}

func medicationPrompt(q MedicationQuery) string {
	extra := ""
	if q.Premium {
		extra = `,
  "generic_names": ["..."],
  "brand_names": ["..."],
  "alternative_names": ["..."]`
	}
	return fmt.Sprintf(`You assist medical interpreters with medication names.
Translate the medication name into %[1]s. Reply with JSON only:
{
  "medication_name": "<original name>",
  "direct_translation": "<translation>",
  "target_language": "%[1]s"%[2]s
}
When generic, brand or alternative names are requested, list those used in regions where %[1]s is spoken.`, q.TargetLanguage, extra)
}

func scenarioPrompt(r ScenarioRequest) string {
	return fmt.Sprintf(`You are a training simulator for medical interpreters following %s standards.
Write a %s scenario at %s difficulty. The provider speaks English with a %s accent; the patient speaks %s.
The scenario must test accuracy and completeness, use terminology fitting the setting, raise ethical questions
(confidentiality, impartiality, scope of practice), call for cultural mediation where natural, and include
interruptions and requests for clarification. Mark every turn as Doctor, Patient or Interpreter (expected rendition).`,
		standards, r.ScenarioType, r.Difficulty, r.ProviderAccent, r.TargetLanguage)
}

const evaluationPrompt = `You evaluate medical interpreter performance against ` + standards + ` standards.
Assess accuracy and completeness, ethical conduct (confidentiality, impartiality, professional boundaries),
language proficiency in both languages, cultural mediation and protocol adherence.
Begin with "Score: N" where N is 0-100, then list strengths and areas for improvement.`

const ethicsPrompt = `You are an ethics consultant for medical interpreters. Ground every answer in the ` + standards + `
codes of ethics and standards of practice, cite the principle involved, and recommend a concrete course of action.
If a question is outside interpreting ethics, say so briefly.`

// TranslateTerm translates a glossary term, with its definition when given.
func (g *GeminiClient) TranslateTerm(ctx context.Context, req TermTranslation) (string, error) {
	user := fmt.Sprintf("Translate this medical interpreter term to %s: %s", req.TargetLanguage, req.Term)
	if req.Definition != "" {
		user = fmt.Sprintf("Translate this term and its definition to %s.\nTerm: %s\nDefinition: %s\n\nAnswer as:\nTranslated Term: <term>\nTranslated Definition: <definition>",
			req.TargetLanguage, req.Term, req.Definition)
	}
	return g.generate(ctx, translateTermPrompt(req.TargetLanguage), userTurn(user), false)
}

// SearchTerm looks up a term and returns the structured text answer.
func (g *GeminiClient) SearchTerm(ctx context.Context, term, targetLanguage string) (string, error) {
	return g.generate(ctx, searchTermPrompt(targetLanguage), userTurn("Provide information for: "+term), false)
}

// TranslateMedication returns the translated name and, for premium callers,
// related names.
func (g *GeminiClient) TranslateMedication(ctx context.Context, q MedicationQuery) (*MedicationInfo, error) {
	text, err := g.generate(ctx, medicationPrompt(q), userTurn("Medication: "+q.Medication), true)
	if err != nil {
		return nil, err
	}
	return parseMedication(text)
}

// PracticeScenario generates a role-play script.
func (g *GeminiClient) PracticeScenario(ctx context.Context, r ScenarioRequest) (string, error) {
	user := fmt.Sprintf("Generate a %s practice scenario. Target language: %s, difficulty: %s, provider accent: %s.",
		r.ScenarioType, r.TargetLanguage, r.Difficulty, r.ProviderAccent)
	return g.generate(ctx, scenarioPrompt(r), userTurn(user), false)
}

// EvaluatePerformance grades a transcript.
func (g *GeminiClient) EvaluatePerformance(ctx context.Context, r EvaluationRequest) (*Evaluation, error) {
	user := fmt.Sprintf("Evaluate this %s interpretation session (target language: %s):\n\n%s", r.ScenarioType, r.TargetLanguage, r.Transcript)
	text, err := g.generate(ctx, evaluationPrompt, userTurn(user), false)
	if err != nil {
		return nil, err
	}
	return &Evaluation{Score: parseScore(text), Feedback: text}, nil
}

// ConsultEthics answers the last question of a consultation.
func (g *GeminiClient) ConsultEthics(ctx context.Context, history []ChatMessage) (string, error) {
	contents := make([]*genai.Content, 0, len(history))
	for _, m := range history {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: m.Content}}})
	}
	return g.generate(ctx, ethicsPrompt, contents, false)
}

func userTurn(text string) []*genai.Content {
	return []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: text}}}}
}

// generate runs one completion, retrying transient failures with backoff.
func (g *GeminiClient) generate(ctx context.Context, system string, contents []*genai.Content, jsonOut bool) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr(float32(0.4)),
	}
	if jsonOut {
		cfg.ResponseMIMEType = "application/json"
		cfg.Temperature = genai.Ptr(float32(0.1))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	return retry.DoWithData(
		func() (string, error) {
			resp, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
			if err != nil {
				return "", fmt.Errorf("gemini generate: %w", err)
			}
			text := resp.Text()
			if text == "" {
				return "", errors.New("empty gemini response")
			}
			return text, nil
		},
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Msg("gemini call failed, retrying")
		}),
	)
}

// parseScore pulls "score: N" out of free-text feedback, clamped to 0-100.
func parseScore(feedback string) int {
	m := scorePattern.FindStringSubmatch(feedback)
	if m == nil {
		return defaultScore
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return defaultScore
	}
	return min(n, 100)
}

// parseMedication decodes the first JSON object found in text.
func parseMedication(text string) (*MedicationInfo, error) {
	raw := jsonPattern.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in response: %q", text)
	}
	var info MedicationInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, fmt.Errorf("parse medication JSON: %w", err)
	}
	if info.DirectTranslation == "" {
		return nil, errors.New("medication response has no translation")
	}
	return &info, nil
}
