// Package voice 编排语音支付流程：转写、意图提取、写入待确认交易、
// 生成确认话术与语音，以及处理用户的确认或取消回复。
package voice
