package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Kousuke-irie/campus-market-backend/config"
	"google.golang.org/api/option"
)

// Suggestion Geminiが返す出品下書き
type Suggestion struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Price           int64    `json:"price"`
	TransactionType string   `json:"transaction_type"`
	Tags            []string `json:"tags"`
	CategoryID      string   `json:"category_id"`
}

// CategoryOption プロンプトに渡すカテゴリ候補
type CategoryOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Analyzer struct {
	client *genai.Client
	model  string
}

func NewAnalyzer(ctx context.Context, cfg config.Gemini, credentialsFile string) (*Analyzer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	} else {
		slog.Warn("GOOGLE_APPLICATION_CREDENTIALS is not set for Gemini, trying default authentication")
	}

	client, err := genai.NewClient(ctx, cfg.ProjectID, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Analyzer{client: client, model: cfg.Model}, nil
}

func (a *Analyzer) Close() error {
	return a.client.Close()
}

// AnalyzePostImage 画像を解析して出品フォームの下書きを返す。imageFormat は "jpeg" / "png" など
func (a *Analyzer) AnalyzePostImage(ctx context.Context, image []byte, imageFormat string, categories []CategoryOption) (*Suggestion, error) {
	categoriesJSON, err := json.Marshal(categories)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal categories: %w", err)
	}

	model := a.client.GenerativeModel(a.model)
	// 期待するレスポンスのフォーマットを強制する設定
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx,
		genai.Text(buildPrompt(string(categoriesJSON))),
		genai.ImageData(imageFormat, image),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from AI")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response format")
	}
	return ParseSuggestion(string(text), categories)
}

func buildPrompt(categoriesJSON string) string {
	return fmt.Sprintf(`
	Bạn là trợ lý đăng tin cho chợ đồ cũ sinh viên.
	Hãy phân tích ảnh được tải lên và trả về JSON với các trường sau:

	- title: tên món đồ ngắn gọn, hấp dẫn (tối đa 60 ký tự)
	- description: mô tả 100-200 ký tự, nêu tình trạng, màu sắc, công dụng
	- price: giá bán đồ cũ hợp lý ước tính (VND, số nguyên)
	- transaction_type: một trong "sell", "exchange", "free"
	- tags: khoảng 5 từ khóa tìm kiếm
	- category_id: CHỈ chọn id trong danh sách danh mục sau:
	%s
	`, categoriesJSON)
}

// ParseSuggestion モデル出力を構造体に変換する。存在しないカテゴリIDは空にする
func ParseSuggestion(raw string, categories []CategoryOption) (*Suggestion, error) {
	// マークダウンのコードブロックが含まれる場合の除去処理
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var s Suggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &s); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	valid := false
	for _, c := range categories {
		if c.ID == s.CategoryID {
			valid = true
			break
		}
	}
	if !valid {
		slog.Warn("AI returned unknown category id", slog.String("category_id", s.CategoryID))
		s.CategoryID = ""
	}

	switch s.TransactionType {
	case "sell", "exchange", "free":
	default:
		s.TransactionType = "sell"
	}
	if s.Price < 0 {
		s.Price = 0
	}
	return &s, nil
}
