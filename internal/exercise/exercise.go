// Package exercise maps a scheduled knowledge node to one concrete
// exercise payload. Dispatch is a switch over the knowledge node's axis;
// an axis with no case is reported as an error by Generate at run time.
package exercise

import (
	"fmt"

	"github.com/iqrahapp/iqrah-core/internal/content"
	"github.com/iqrahapp/iqrah-core/internal/logging"
	"github.com/iqrahapp/iqrah-core/internal/model"
)

// Type identifies an ExerciseData variant.
type Type string

const (
	TypeMemorization          Type = "memorization"
	TypeMultipleChoice        Type = "multiple_choice"
	TypeClozeDeletion         Type = "cloze_deletion"
	TypeFirstLetterHint       Type = "first_letter_hint"
	TypeMissingWordMcq        Type = "missing_word_mcq"
	TypeNextWordMcq           Type = "next_word_mcq"
	TypeTranslation           Type = "translation"
	TypeReverseCloze          Type = "reverse_cloze"
	TypeTranslatePhrase       Type = "translate_phrase"
	TypeFindMistake           Type = "find_mistake"
	TypeAyahSequence          Type = "ayah_sequence"
	TypeAyahChain             Type = "ayah_chain"
	TypeIdentifyRoot          Type = "identify_root"
	TypePosTagging            Type = "pos_tagging"
	TypeCrossVerseConnection  Type = "cross_verse_connection"
	TypeContextualTranslation Type = "contextual_translation"
	TypeFullVerseInput        Type = "full_verse_input"
	TypeEchoRecall            Type = "echo_recall"
	TypeSequenceRecall        Type = "sequence_recall"
	TypeFirstWordRecall       Type = "first_word_recall"
)

// ExerciseData is the payload handed to the client for one session item.
// Every variant embeds Type so callers can switch on it; State carries a
// serializable blob for the stateful variants (AyahChain, EchoRecall) that
// the session engine passes back on each submit.
type ExerciseData struct {
	Type         Type
	VerseKey     string
	Text         string
	BlankIndex   int
	Options      []string
	TranslatorID string
	State        map[string]string
}

// Generator maps scheduled nodes to exercises using the installed content.
type Generator struct {
	content *content.Store
}

// New constructs a Generator over a content store.
func New(store *content.Store) *Generator {
	return &Generator{content: store}
}

// Generate returns one ExerciseData for the knowledge node nodeID,
// selected by its axis. If the chosen variant's required data is missing
// (e.g. no translation pack installed), Generate falls back to a variant
// that only needs data known to exist, never returning an invalid
// payload.
func (g *Generator) Generate(nodeID model.NodeID, priorState map[string]string) (ExerciseData, error) {
	timer := logging.StartTimer(logging.CategoryExercise, "Generate")
	defer timer.Stop()

	node, err := g.content.GetKnowledgeNode(nodeID)
	if err != nil {
		return ExerciseData{}, err
	}

	switch node.Axis {
	case model.AxisMemorization, model.AxisContextualMemorization:
		return g.generateMemorization(node)
	case model.AxisTranslation:
		return g.generateTranslation(node)
	case model.AxisTafsir:
		return g.generateTafsir(node)
	case model.AxisTajweed:
		return g.generateTajweed(node)
	case model.AxisMeaning:
		return g.generateMeaning(node, priorState)
	default:
		// An axis with no case above, including an unknown value read from
		// the node's metadata, is reported as an error.
		return ExerciseData{}, fmt.Errorf("exercise: unhandled axis %q", node.Axis)
	}
}

func (g *Generator) verseKeyFor(node model.KnowledgeNode) (string, error) {
	base, err := g.content.GetNode(node.BaseNodeID)
	if err != nil {
		return "", err
	}
	return base.Ukey, nil
}

func (g *Generator) generateMemorization(node model.KnowledgeNode) (ExerciseData, error) {
	verseKey, err := g.verseKeyFor(node)
	if err != nil {
		return ExerciseData{}, err
	}
	text, err := g.content.GetVerseText(verseKey)
	if err != nil {
		if err == content.ErrNotFound {
			return ExerciseData{Type: TypeMemorization, VerseKey: verseKey}, nil
		}
		return ExerciseData{}, err
	}

	words, err := g.content.GetWordsForVerse(verseKey)
	if err == nil && len(words) > 2 {
		// ClozeDeletion needs at least one interior word to blank out.
		return ExerciseData{Type: TypeClozeDeletion, VerseKey: verseKey, Text: text, BlankIndex: len(words) / 2}, nil
	}
	return ExerciseData{Type: TypeMemorization, VerseKey: verseKey, Text: text}, nil
}

func (g *Generator) generateTranslation(node model.KnowledgeNode) (ExerciseData, error) {
	verseKey, err := g.verseKeyFor(node)
	if err != nil {
		return ExerciseData{}, err
	}
	const defaultTranslator = "en"
	text, err := g.content.GetTranslation(verseKey, defaultTranslator)
	if err != nil {
		if err == content.ErrNotFound {
			// No translation pack installed: fall back to a variant that
			// only needs verse text, which is always present.
			return g.generateMemorization(node)
		}
		return ExerciseData{}, err
	}
	return ExerciseData{Type: TypeTranslation, VerseKey: verseKey, Text: text, TranslatorID: defaultTranslator}, nil
}

func (g *Generator) generateTafsir(node model.KnowledgeNode) (ExerciseData, error) {
	verseKey, err := g.verseKeyFor(node)
	if err != nil {
		return ExerciseData{}, err
	}
	return ExerciseData{Type: TypeCrossVerseConnection, VerseKey: verseKey}, nil
}

func (g *Generator) generateTajweed(node model.KnowledgeNode) (ExerciseData, error) {
	verseKey, err := g.verseKeyFor(node)
	if err != nil {
		return ExerciseData{}, err
	}
	return ExerciseData{Type: TypeFindMistake, VerseKey: verseKey}, nil
}

func (g *Generator) generateMeaning(node model.KnowledgeNode, priorState map[string]string) (ExerciseData, error) {
	verseKey, err := g.verseKeyFor(node)
	if err != nil {
		return ExerciseData{}, err
	}
	if priorState == nil {
		priorState = map[string]string{"step": "0"}
	}
	return ExerciseData{Type: TypeEchoRecall, VerseKey: verseKey, State: priorState}, nil
}
