package restockwatch_test

import (
	"os"
	"strings"
	"testing"
)

func readRepoFile(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("%s を読み込めません: %v", name, err)
	}
	return string(data)
}

// serviceBlock はdocker-compose.ymlから指定サービスの定義部分を切り出す。
func serviceBlock(t *testing.T, compose, name string) string {
	t.Helper()
	start := strings.Index(compose, "\n  "+name+":\n")
	if start < 0 {
		t.Fatalf("サービス %q が定義されていない", name)
	}
	rest := compose[start+1:]
	lines := strings.Split(rest, "\n")
	var b strings.Builder
	b.WriteString(lines[0] + "\n")
	for _, line := range lines[1:] {
		// 次のサービスまたはトップレベルのキーで終了
		if strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "   ") && !strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
		if line != "" && !strings.HasPrefix(line, " ") {
			break
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

func TestDockerfile_BuildsRestockwatchBinary(t *testing.T) {
	content := readRepoFile(t, "Dockerfile")

	for _, want := range []string{
		"FROM golang:",
		"CGO_ENABLED=0",
		"./cmd/restockwatch",
		`ENTRYPOINT ["/usr/local/bin/restockwatch"]`,
	} {
		if !strings.Contains(content, want) {
			t.Errorf("Dockerfileに %q が含まれていない", want)
		}
	}
}

// TestDockerfile_DistrolessRuntime は実行ステージがシェルを持たないイメージであることを検証する。
func TestDockerfile_DistrolessRuntime(t *testing.T) {
	content := readRepoFile(t, "Dockerfile")

	var lastFrom string
	for _, line := range strings.Split(content, "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "FROM ") {
			lastFrom = trimmed
		}
	}
	if !strings.Contains(lastFrom, "gcr.io/distroless") {
		t.Errorf("final stage = %q, want distroless", lastFrom)
	}
	if !strings.Contains(content, "USER nonroot") {
		t.Error("非rootユーザーで実行すること")
	}
}

// TestDockerfile_HealthcheckUsesSubcommand はシェルのない環境でhealthcheckサブコマンドを使うことを検証する。
func TestDockerfile_HealthcheckUsesSubcommand(t *testing.T) {
	content := readRepoFile(t, "Dockerfile")

	if !strings.Contains(content, `CMD ["/usr/local/bin/restockwatch", "healthcheck"]`) {
		t.Error("HEALTHCHECKはhealthcheckサブコマンドを使うこと")
	}
	if strings.Contains(content, "curl") || strings.Contains(content, "wget") {
		t.Error("distrolessにはcurl/wgetが存在しない")
	}
}

func TestDockerCompose_Commands(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	tests := []struct {
		service string
		command string
	}{
		{"migrate", `command: ["migrate"]`},
		{"api", `command: ["serve"]`},
		{"worker", `command: ["worker"]`},
	}
	for _, tt := range tests {
		t.Run(tt.service, func(t *testing.T) {
			block := serviceBlock(t, compose, tt.service)
			if !strings.Contains(block, tt.command) {
				t.Errorf("%s: %q が含まれていない\n%s", tt.service, tt.command, block)
			}
		})
	}
}

// TestDockerCompose_APIDoesNotAutostart は監視エンジンがworkerだけで動くことを検証する。
func TestDockerCompose_APIDoesNotAutostart(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	if !strings.Contains(serviceBlock(t, compose, "api"), `MONITOR_AUTOSTART: "false"`) {
		t.Error("apiはMONITOR_AUTOSTART=falseで起動すること")
	}
	if strings.Contains(serviceBlock(t, compose, "worker"), "MONITOR_AUTOSTART") {
		t.Error("workerは自動起動を無効にしないこと")
	}
}

func TestDockerCompose_AdminTokenRequired(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	if !strings.Contains(compose, "${ADMIN_TOKEN:?") {
		t.Error("ADMIN_TOKEN未設定時はcomposeの起動を失敗させること")
	}
}

// TestDockerCompose_Networks はDBが内部ネットワークのみに接続されることを検証する。
func TestDockerCompose_Networks(t *testing.T) {
	compose := readRepoFile(t, "docker-compose.yml")

	if !strings.Contains(compose, "internal: true") {
		t.Error("内部ネットワーク（internal: true）が定義されていない")
	}

	db := serviceBlock(t, compose, "db")
	if strings.Contains(db, "- external") {
		t.Error("dbを外部ネットワークに接続しないこと")
	}
	if !strings.Contains(serviceBlock(t, compose, "worker"), "- external") {
		t.Error("workerはストアフロント取得のため外部ネットワークに接続すること")
	}
}
