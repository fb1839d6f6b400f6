package routes

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/hypd-games/hypd-edge/internal/command"
)

// RegisterCommandRoutes 暴露 POST /-/commands 命令入口。语义是单向投递：
// 请求体解析成功即返回 202，处理结果不回传（包括未识别的标签）。
func RegisterCommandRoutes(app *fiber.App, channel *command.Channel, logger *logrus.Logger) {
	if app == nil || channel == nil {
		return
	}

	app.Post("/-/commands", func(c fiber.Ctx) error {
		var msg command.Message
		if err := json.Unmarshal(c.Body(), &msg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "malformed_command"})
		}
		if msg.Type == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "command_type_required"})
		}

		if !channel.Post(msg) && logger != nil {
			logger.WithFields(logrus.Fields{
				"action": "command_ingress",
				"type":   msg.Type,
			}).Warn("命令投递被丢弃")
		}
		// 即便消息被丢弃也返回 202：投递方没有应答槽位。
		return c.SendStatus(fiber.StatusAccepted)
	})
}
