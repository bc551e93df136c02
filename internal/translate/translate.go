// Package translate wraps the Google Translate v2 REST API: language
// detection plus translation, with an optional cache in front.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Languages is the fixed translation set: a message is detected and then
// translated to the other members.
var Languages = []string{"ko", "zh", "vi", "km"}

func IsSupported(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

type Cache interface {
	GetDetection(text string) (string, bool)
	SetDetection(text, lang string)
	GetTranslation(text, target string) (string, bool)
	SetTranslation(text, target, translated string)
}

type Client struct {
	baseURL    string
	apiKey     string
	cache      Cache
	httpClient *http.Client
}

// NewClient builds a client; cache may be nil.
func NewClient(baseURL, apiKey string, cache Cache) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://translation.googleapis.com/language/translate/v2"
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		cache:   cache,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type detectResponse struct {
	Data struct {
		Detections [][]struct {
			Language string `json:"language"`
		} `json:"detections"`
	} `json:"data"`
}

func (c *Client) Detect(ctx context.Context, text string) (string, error) {
	if c.cache != nil {
		if lang, ok := c.cache.GetDetection(text); ok {
			return lang, nil
		}
	}

	form := url.Values{"q": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect?key="+url.QueryEscape(c.apiKey), strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: detect returned %s", resp.Status)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decode detect response: %w", err)
	}
	if len(out.Data.Detections) == 0 || len(out.Data.Detections[0]) == 0 {
		return "", fmt.Errorf("translate: empty detection")
	}

	lang := out.Data.Detections[0][0].Language
	if c.cache != nil {
		c.cache.SetDetection(text, lang)
	}
	return lang, nil
}

type translateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

func (c *Client) Translate(ctx context.Context, text, target string) (string, error) {
	if c.cache != nil {
		if out, ok := c.cache.GetTranslation(text, target); ok {
			return out, nil
		}
	}

	body, err := json.Marshal(translateRequest{Q: text, Target: target, Format: "text"})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"?key="+url.QueryEscape(c.apiKey), strings.NewReader(string(body)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate: returned %s", resp.Status)
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("translate: decode response: %w", err)
	}
	if len(out.Data.Translations) == 0 {
		return "", fmt.Errorf("translate: empty translation")
	}

	translated := out.Data.Translations[0].TranslatedText
	if c.cache != nil {
		c.cache.SetTranslation(text, target, translated)
	}
	return translated, nil
}
