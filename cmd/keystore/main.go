package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/quantbot/gotrader/pkg/secretstore"
)

// keystore 把 .env 里的 KEY=VALUE 导入加密的 badger 凭证库
// 配置文件里用 secret://<key> 引用导入的凭证
func main() {
	var (
		inPath    = flag.String("in", ".env", "输入 .env 文件路径")
		dbPath    = flag.String("store", getenv("GOTRADER_SECRET_DB", "data/secrets.badger"), "badger 凭证库路径")
		secretKey = flag.String("secret-key", getenv("GOTRADER_SECRET_KEY", ""), "badger 加密密钥（32字节，base64 或 hex）")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("缺少加密密钥：设置 GOTRADER_SECRET_KEY 或传 -secret-key"))
	}

	kv, err := parseDotEnvFile(*inPath)
	if err != nil {
		fatal(err)
	}

	store, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
		ReadOnly:      false,
	})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	written := 0
	for k, v := range kv {
		if err := store.SetString(strings.ToLower(k), v); err != nil {
			fatal(err)
		}
		written++
	}

	fmt.Fprintf(os.Stderr, "已导入 %d 项到 %s\n", written, *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

func parseDotEnvFile(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, line := range strings.Split(string(b), "\n") {
		l := strings.TrimSpace(strings.TrimRight(line, "\r"))
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		if !strings.Contains(l, "=") {
			continue
		}
		parts := strings.SplitN(l, "=", 2)
		k := strings.TrimSpace(parts[0])
		v := strings.TrimSpace(parts[1])
		if k == "" {
			continue
		}
		if len(v) >= 2 && ((v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'')) {
			v = v[1 : len(v)-1]
		}
		out[k] = v
	}
	return out, nil
}
