package summarize

import "fmt"

// TextSystemPrompt - shared system prompt for every text generation step
const TextSystemPrompt = `あなたは「地域密着の電気屋さん向け漫画コンテンツディレクター」です。
対象読者は50代以上の地域のお客様です。
読みやすく、親しみやすく、短いセリフで伝えてください。
必ず行動導線（CTA）を含めてください。
出力は指定したJSON形式のみで返答してください。`

// buildSummarizePrompt - instruct the model to distill a LINE post into
// comic-ready key points
func buildSummarizePrompt(postText string) string {
	return fmt.Sprintf(`以下のLINE投稿文を、漫画化に使える要点に整理してください。

LINE投稿文:
"""%s"""

必須要件:
- 投稿文から逸脱しないこと
- 50代以上の読者に伝わる言葉に言い換えること
- CTA候補を3つ以上入れること

次のJSONを必ず返してください:
{
  "mainTheme": "投稿の中心テーマ",
  "targetPersona": "想定読者",
  "painPoints": ["困りごと1", "困りごと2"],
  "keyFacts": ["事実1", "事実2"],
  "solutionMessage": "店主としての提案",
  "ctaCandidates": ["LINE返信", "電話相談", "来店予約"],
  "toneNotes": "話し方の方針"
}`, postText)
}
