package generate

import (
	"fmt"
	"strings"

	"manga-promo-server/modules/common/model"
)

func panelText(pattern model.Pattern) string {
	lines := make([]string, 0, 4)
	for _, panel := range pattern.FourPanels {
		lines = append(lines, fmt.Sprintf("コマ%d\n- シーン: %s\n- セリフ: %s", panel.Panel, panel.Scene, panel.Dialogue))
	}
	return strings.Join(lines, "\n")
}

// BuildImagePrompt - full image generation prompt for one pattern and layout.
// An empty revisionInstruction means a first-time generation.
func BuildImagePrompt(summary model.Summary, pattern model.Pattern, layout model.Layout, revisionInstruction string) string {
	var sizeInstruction, layoutInstruction string
	if layout == model.LayoutFourPanel {
		sizeInstruction = "1080x1080pxの正方形1枚に4コマをレイアウト。"
		layoutInstruction = "4コマは田の字または縦1列で読みやすく配置。"
	} else {
		sizeInstruction = "2480x3508pxのA4縦1枚。4コマ分割はせず、1ページ漫画として導入→共感→解決→行動の順で構成する。"
		layoutInstruction = "A4は4コマ枠(均等4分割)を使わず、メインビジュアル+吹き出し+補助カットで視線誘導を設計する。"
	}

	revisionBlock := "初回生成。"
	if revisionInstruction != "" {
		revisionBlock = fmt.Sprintf("修正指示:\n- %s\n上記指示を必ず反映して再生成する。", revisionInstruction)
	}

	return fmt.Sprintf(`あなたは日本語漫画の画像生成アシスタントです。
style固定: cute chibi style, pop color, Japanese manga

必須キャラクター:
- 店主（きょうしんさん）: 電気工事・家電のプロ、親切で頼もしい
- 妻: 明るく寄り添う
- お客様: 50代以上を中心に1〜2名

要約情報:
- メインテーマ: %s
- 想定読者: %s
- 困りごと: %s
- 解決メッセージ: %s
- CTA候補: %s

選択構成:
- 切り口: %s
- タイトル: %s
- 4コマ:
%s
- A4流れ:
  - 導入: %s
  - 共感: %s
  - 解決: %s
  - 行動: %s
- 最終CTA: %s

画像要件:
- %s
- %s
- 日本語テキストを入れる。セリフは短く簡潔。
- 最後に必ずCTAを明示。
- 投稿内容から逸脱しない。

%s`,
		summary.MainTheme,
		summary.TargetPersona,
		strings.Join(summary.PainPoints, " / "),
		summary.SolutionMessage,
		strings.Join(summary.CTACandidates, " / "),
		pattern.PatternType.Label(),
		pattern.Title,
		panelText(pattern),
		pattern.A4Flow.Intro,
		pattern.A4Flow.Empathy,
		pattern.A4Flow.Solution,
		pattern.A4Flow.Action,
		pattern.CTA,
		sizeInstruction,
		layoutInstruction,
		revisionBlock,
	)
}
