package app

// Command はサブコマンド（起動モード）を表す。
type Command string

const (
	// CommandServe は管理APIと監視エンジンを同一プロセスで起動する。
	CommandServe Command = "serve"
	// CommandWorker は管理APIを持たず、監視エンジンと運用用の/health・/metricsのみを起動する。
	CommandWorker Command = "worker"
	// CommandScan はスキャンサイクルを1回だけ実行して終了する。
	CommandScan Command = "scan"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandScan):        CommandScan,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand はos.Args[1:]の先頭からサブコマンドを決定する。
// 未指定や未知の値はCommandServeとして扱う。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := commands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
