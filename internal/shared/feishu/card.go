package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SendCard 向群聊发送卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	return c.sendCard(ctx, "chat_id", chatID, card)
}

// SendUserCard 向个人发送卡片，userID 为 open_id
func (c *FeishuClient) SendUserCard(ctx context.Context, userID string, card InteractiveCard) error {
	return c.sendCard(ctx, "open_id", userID, card)
}

func (c *FeishuClient) sendCard(ctx context.Context, idType, id string, card InteractiveCard) error {
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("encode card: %w", err)
	}
	body := map[string]interface{}{
		"receive_id": id,
		"msg_type":   "interactive",
		"content":    string(content),
	}
	var resp SendMessageResponse
	path := "/open-apis/im/v1/messages?receive_id_type=" + idType
	if err := c.doRequest(ctx, http.MethodPost, path, body, &resp); err != nil {
		return fmt.Errorf("send card to %s: %w", id, err)
	}
	return nil
}

// StructureChange 结构变更卡片内容
type StructureChange struct {
	TreeName     string
	VersionName  string
	ChangeType   string
	Description  string
	Significance int
	ChangedBy    string
	Stakeholders []string
}

// NewStructureChangeCard BOM 结构重大变更通知卡片
func NewStructureChangeCard(ch StructureChange) InteractiveCard {
	template := "orange"
	if ch.Significance >= 3 {
		template = "red"
	}
	changedBy := ch.ChangedBy
	if changedBy == "" {
		changedBy = "system"
	}

	elements := []CardElement{
		{
			Tag: "div",
			Fields: []CardField{
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**BOM**\n%s", ch.TreeName)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**版本**\n%s", ch.VersionName)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**变更类型**\n%s", ch.ChangeType)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**重要度**\n%d", ch.Significance)}},
				{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**变更人**\n%s", changedBy)}},
			},
		},
	}
	if ch.Description != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{Tag: "div", Text: &CardText{Tag: "lark_md", Content: ch.Description}},
		)
	}
	if len(ch.Stakeholders) > 0 {
		elements = append(elements, CardElement{
			Tag:      "note",
			Elements: []CardElement{{Tag: "plain_text", Content: "相关人员: " + strings.Join(ch.Stakeholders, ", ")}},
		})
	}

	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "BOM 结构变更需审批"},
			Template: template,
		},
		Elements: elements,
	}
}
