package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/quantbot/gotrader/internal/domain"
)

// param 单个请求参数
// 签名对序列化后的字节逐位敏感，参数顺序是线上契约的一部分，
// 必须按交易所文档的字段顺序排列，不能依赖 map 遍历
type param struct {
	Key   string
	Value string
}

// buildOrderParams 构建下单请求的参数序列（固定字段顺序）
// 顺序: symbol, side, type, quantity[, price, timeInForce],
//       newClientOrderId, timestamp, recvWindow
func buildOrderParams(req domain.OrderRequest, timestampMS, recvWindowMS int64) []param {
	params := []param{
		{"symbol", req.Symbol},
		{"side", string(req.Side)},
		{"type", string(req.Type)},
		{"quantity", req.Quantity.String()},
	}
	if req.Type == domain.OrderTypeLimit {
		params = append(params,
			param{"price", req.Price.String()},
			param{"timeInForce", "GTC"},
		)
	}
	params = append(params,
		param{"newClientOrderId", req.ClientOrderID},
		param{"timestamp", strconv.FormatInt(timestampMS, 10)},
		param{"recvWindow", strconv.FormatInt(recvWindowMS, 10)},
	)
	return params
}

// encodeParams 按给定顺序序列化为 key=value&key=value
func encodeParams(params []param) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(p.Key)
		sb.WriteByte('=')
		sb.WriteString(p.Value)
	}
	return sb.String()
}

// sign 对序列化后的参数串计算 HMAC-SHA256 签名（hex 编码）
func sign(queryString, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// signedQuery 构建带签名的完整 query string（signature 追加在最后）
func signedQuery(params []param, secret string) string {
	qs := encodeParams(params)
	return qs + "&signature=" + sign(qs, secret)
}
