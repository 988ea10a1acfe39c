package nlu

import (
	"context"
	"regexp"
	"strings"
)

// Canned reply texts the rule engine attaches to its classifications.
const (
	MessageQueryOrder   = "我將幫您查詢訂單資訊"
	MessageQueryProduct = "我將幫您搜尋產品"
	MessageQueryStock   = "我將幫您查詢庫存資訊"
	MessageGreeting     = "您好！我是 TRiPEAK 客服助手，很高興為您服務！"
	MessageHelp         = "我可以幫您：\n1. 查詢訂單資訊\n2. 搜尋產品\n3. 查詢庫存\n4. 聯繫客服\n5. 查看聯繫 Line ID \n請告訴我您需要什麼協助？"
	MessageUnclear      = "抱歉，我不太理解您的意思。您可以說「訂單查詢」、「產品搜尋」或「幫助」來獲取協助。"
)

// orderNumberPattern matches order numbers such as TP2501011234. It runs
// against the raw (not lower-cased) text so the TP prefix survives.
var orderNumberPattern = regexp.MustCompile(`[A-Z0-9]{6,}`)

// productVocabulary is the fixed set of product names the rule engine can
// pick out of a message.
var productVocabulary = []string{"牙盤", "曲柄", "導輪", "螺絲"}

// RuleEngine is the deterministic keyword classifier. It doubles as the
// "rules" provider and as the universal fallback, and it never fails.
type RuleEngine struct{}

func NewRuleEngine() *RuleEngine { return &RuleEngine{} }

func (e *RuleEngine) Name() string { return "rules" }

// Understand classifies by fixed, ordered keyword rules. The order matters:
// the order rule wins over the product and stock rules.
func (e *RuleEngine) Understand(_ context.Context, text string, _ Dialog) (Result, error) {
	return e.Classify(text), nil
}

// Classify evaluates the keyword rules against the lower-cased text.
func (e *RuleEngine) Classify(text string) Result {
	lower := normalizeText(text)

	if containsAny(lower, "訂單", "order") && containsAny(lower, "查詢", "查", "看") {
		return Result{
			Intent:     IntentQueryOrder,
			Confidence: 0.8,
			Entities:   extractOrderNumber(text),
			Message:    MessageQueryOrder,
		}
	}

	if containsAny(lower, "產品", "商品", "product") && containsAny(lower, "查詢", "查", "有") {
		return Result{
			Intent:     IntentQueryProduct,
			Confidence: 0.8,
			Entities:   map[string]string{},
			Message:    MessageQueryProduct,
		}
	}

	if containsAny(lower, "庫存", "stock") {
		return Result{
			Intent:     IntentQueryStock,
			Confidence: 0.7,
			Entities:   extractProductName(text),
			Message:    MessageQueryStock,
		}
	}

	if containsAny(lower, "你好", "嗨", "hello", "hi") {
		return Result{
			Intent:     IntentGreeting,
			Confidence: 0.9,
			Entities:   map[string]string{},
			Message:    MessageGreeting,
		}
	}

	if containsAny(lower, "幫助", "help", "功能") {
		return Result{
			Intent:     IntentGetHelp,
			Confidence: 0.8,
			Entities:   map[string]string{},
			Message:    MessageHelp,
		}
	}

	return Result{
		Intent:     IntentUnclear,
		Confidence: 0.5,
		Entities:   map[string]string{},
		Message:    MessageUnclear,
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// extractOrderNumber pulls the first order-number-shaped substring out of
// the raw message text.
func extractOrderNumber(text string) map[string]string {
	if m := orderNumberPattern.FindString(text); m != "" {
		return map[string]string{EntityOrderNumber: m}
	}
	return map[string]string{}
}

// extractProductName finds the first vocabulary product mentioned in the
// message.
func extractProductName(text string) map[string]string {
	for _, name := range productVocabulary {
		if strings.Contains(text, name) {
			return map[string]string{EntityProductName: name}
		}
	}
	return map[string]string{}
}
