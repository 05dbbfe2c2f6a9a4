package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/John-Robertt/ammds-bridge/internal/domain"
	"github.com/John-Robertt/ammds-bridge/internal/health"
)

func (c *ServersListCmd) Run(deps *Dependencies) error {
	list, err := deps.Servers.All(deps.Ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(deps.Stdout, "尚未登记服务端。使用 'ammds servers add <url> --default' 添加。")
		return nil
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEFAULT\tNAME\tURL\tENABLED\tSTATUS")
	for _, s := range list {
		mark := ""
		if s.Preferred {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", mark, s.Name, s.URL, s.Enabled, statusText(s.Status))
	}
	return tw.Flush()
}

func statusText(v *bool) string {
	switch {
	case v == nil:
		return "-"
	case *v:
		return "ok"
	default:
		return "down"
	}
}

func (c *ServersAddCmd) Run(deps *Dependencies) error {
	reg := domain.ServerRegistration{
		Name:      c.Name,
		URL:       c.URL,
		Secret:    c.Secret,
		Enabled:   c.Enabled,
		Preferred: c.Default,
	}
	if err := deps.Servers.Add(deps.Ctx, reg); err != nil {
		fmt.Fprintf(deps.Stderr, "登记失败：%v\n", err)
		return &exitError{code: 1}
	}
	fmt.Fprintf(deps.Stdout, "已登记 %s\n", c.URL)
	return nil
}

func (c *ServersDeleteCmd) Run(deps *Dependencies) error {
	if err := deps.Servers.Delete(deps.Ctx, c.URL); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "已删除 %s\n", c.URL)
	return nil
}

func (c *ServersDefaultCmd) Run(deps *Dependencies) error {
	_, ok, err := deps.Servers.Get(deps.Ctx, c.URL)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(deps.Stderr, "服务端未登记：%s\n", c.URL)
		return &exitError{code: 1}
	}
	if err := deps.Servers.SetDefault(deps.Ctx, c.URL); err != nil {
		return err
	}
	fmt.Fprintf(deps.Stdout, "默认服务端：%s\n", c.URL)
	return nil
}

// Run 探测一轮并写回登记状态；任一服务端不可用时退出码为 1。
func (c *ServersCheckCmd) Run(deps *Dependencies) error {
	checker, pipe := newRelayAPI(deps)
	defer pipe.Close()
	prober := &health.Prober{
		Servers: deps.Servers,
		Checker: checker,
		Timeout: deps.Config.Relay.Timeout,
		Logger:  deps.Logger.With().Str("component", "health").Logger(),
	}
	out, err := prober.CheckAll(deps.Ctx)
	if err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(deps.Stderr, "没有启用的服务端登记")
		return &exitError{code: 1}
	}

	down := 0
	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "URL\tSTATUS\tERROR")
	for _, s := range out {
		st := "ok"
		if !s.OK {
			st = "down"
			down++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.URL, st, s.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if down > 0 {
		return &exitError{code: 1}
	}
	return nil
}
