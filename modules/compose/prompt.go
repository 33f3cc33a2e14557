package compose

import (
	"encoding/json"
	"fmt"

	"manga-promo-server/modules/common/model"
)

// buildComposePrompt - ask for the three fixed pattern angles in one shot
func buildComposePrompt(summary model.Summary) string {
	summaryJSON, _ := json.MarshalIndent(summary, "", "  ")

	return fmt.Sprintf(`次の要点から、漫画構成案を3パターン作ってください。
3パターンは「共感型」「驚き型」「体験談型」をそれぞれ1つずつ作ること。

要点(JSON):
%s

条件:
- タイトルは短く印象的
- 4コマは必ず1〜4コマの流れを守る
  1コマ目: 状況きっかけ
  2コマ目: 困りごと共感
  3コマ目: 店主の解決策
  4コマ目: オチ+CTA
- A4縦は4コマ形式を禁止し、1ページ漫画として「導入・共感・解決・行動」の順で設計する
- CTAは必ず入れる
- セリフは短く、スマホ可読性を優先

次のJSONを返してください:
{
  "patterns": [
    {
      "id": "empathy",
      "patternType": "共感型",
      "title": "タイトル",
      "fourPanels": [
        { "panel": 1, "scene": "状況", "dialogue": "セリフ" },
        { "panel": 2, "scene": "状況", "dialogue": "セリフ" },
        { "panel": 3, "scene": "状況", "dialogue": "セリフ" },
        { "panel": 4, "scene": "状況", "dialogue": "セリフ" }
      ],
      "a4Flow": {
        "intro": "導入",
        "empathy": "共感",
        "solution": "解決",
        "action": "行動"
      },
      "cta": "CTA文言"
    }
  ]
}`, string(summaryJSON))
}
