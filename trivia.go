// Question bank client.
//
// Questions come from an Open Trivia DB compatible API. The front-end
// never talks to it directly; the server proxies both the category list
// and the question fetch so the game has a single origin. Responses are
// requested base64-encoded to sidestep the HTML entity mangling the API
// applies to its default encoding.

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Category is one entry of the question bank's category metadata.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// triviaSource is the external question bank collaborator. It delivers
// ready-to-attach questions for a desired count and category filter.
type triviaSource interface {
	Questions(ctx context.Context, count int, categoryIDs []int) ([]Question, error)
	Categories(ctx context.Context) ([]Category, error)
}

type openTDB struct {
	baseURL string
	client  *http.Client
}

func newOpenTDB(baseURL string) *openTDB {
	return &openTDB{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openTDBQuestion struct {
	Category         string   `json:"category"`
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type openTDBResponse struct {
	ResponseCode int               `json:"response_code"`
	Results      []openTDBQuestion `json:"results"`
}

// Questions fetches count questions. With a category filter the count is
// spread across the selected categories so the mix resembles what the
// host picked; without one it is a single unfiltered fetch.
func (o *openTDB) Questions(ctx context.Context, count int, categoryIDs []int) ([]Question, error) {
	if count <= 0 {
		return []Question{}, nil
	}

	if len(categoryIDs) == 0 {
		return o.fetch(ctx, count, 0)
	}

	questions := make([]Question, 0, count)
	share := count / len(categoryIDs)
	extra := count % len(categoryIDs)

	for i, id := range categoryIDs {
		want := share
		if i < extra {
			want++
		}
		if want == 0 {
			continue
		}

		batch, err := o.fetch(ctx, want, id)
		if err != nil {
			return nil, err
		}
		questions = append(questions, batch...)
	}

	shuffle(questions)
	if len(questions) > count {
		questions = questions[:count]
	}

	return questions, nil
}

func (o *openTDB) fetch(ctx context.Context, count, categoryID int) ([]Question, error) {
	params := url.Values{}
	params.Set("amount", strconv.Itoa(count))
	params.Set("encode", "base64")
	if categoryID > 0 {
		params.Set("category", strconv.Itoa(categoryID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api.php?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("question bank returned status %d", resp.StatusCode)
	}

	var decoded openTDBResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	questions := make([]Question, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		question, err := result.decode()
		if err != nil {
			continue
		}
		questions = append(questions, question)
	}

	return questions, nil
}

// decode converts one base64-encoded API result into a Question, with the
// correct answer shuffled into the option list.
func (q openTDBQuestion) decode() (Question, error) {
	text, err := fromBase64(q.Question)
	if err != nil {
		return Question{}, err
	}
	correct, err := fromBase64(q.CorrectAnswer)
	if err != nil {
		return Question{}, err
	}
	category, err := fromBase64(q.Category)
	if err != nil {
		return Question{}, err
	}
	difficulty, err := fromBase64(q.Difficulty)
	if err != nil {
		return Question{}, err
	}

	options := make([]string, 0, len(q.IncorrectAnswers)+1)
	options = append(options, correct)
	for _, encoded := range q.IncorrectAnswers {
		option, err := fromBase64(encoded)
		if err != nil {
			return Question{}, err
		}
		options = append(options, option)
	}
	shuffle(options)

	return Question{
		Question:   text,
		Correct:    correct,
		Options:    options,
		Category:   category,
		Difficulty: difficulty,
	}, nil
}

func fromBase64(s string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}

	return string(decoded), nil
}

// Fisher-Yates shuffle using crypto/rand
func shuffle[T any](items []T) {
	for i := len(items) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		items[i], items[j] = items[j], items[i]
	}
}

type openTDBCategoryResponse struct {
	TriviaCategories []Category `json:"trivia_categories"`
}

func (o *openTDB) Categories(ctx context.Context) ([]Category, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api_category.php", nil)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("question bank returned status %d", resp.StatusCode)
	}

	var decoded openTDBCategoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	return decoded.TriviaCategories, nil
}

// serveQuestions proxies a question fetch for the host during game start.
func serveQuestions(cfg *Config, source triviaSource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		count := 10
		if v := r.URL.Query().Get("count"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || !intInSet(parsed, questionCounts) {
				respondError(cfg, w, badRequest("Invalid count"))
				return
			}
			count = parsed
		}

		var categoryIDs []int
		if v := r.URL.Query().Get("categories"); v != "" {
			for _, part := range strings.Split(v, ",") {
				id, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil || id < 0 {
					respondError(cfg, w, badRequest("Invalid categories"))
					return
				}
				categoryIDs = append(categoryIDs, id)
			}
			if len(categoryIDs) > maxCategories {
				categoryIDs = categoryIDs[:maxCategories]
			}
		}

		questions, err := source.Questions(r.Context(), count, categoryIDs)
		if err != nil {
			respondError(cfg, w, unavailable("Question bank unavailable"))
			return
		}

		logf(cfg, "TRIVIA: Fetched %d questions for %s in %s",
			len(questions),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)

		respondJSON(cfg, w, http.StatusOK, struct {
			OK        bool       `json:"ok"`
			Questions []Question `json:"questions"`
		}{OK: true, Questions: questions})
	}
}

// serveCategories proxies the category metadata for the lobby settings UI.
func serveCategories(cfg *Config, source triviaSource) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		categories, err := source.Categories(r.Context())
		if err != nil {
			respondError(cfg, w, unavailable("Question bank unavailable"))
			return
		}

		respondJSON(cfg, w, http.StatusOK, struct {
			OK         bool       `json:"ok"`
			Categories []Category `json:"categories"`
		}{OK: true, Categories: categories})
	}
}
