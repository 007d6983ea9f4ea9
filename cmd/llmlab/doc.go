// Copyright (c) LLMLab Authors.
// Licensed under the MIT License.

/*
Package main 提供 LLMLab 服务端程序入口。

# 概述

cmd/llmlab 是 LLMLab 服务的可执行入口，提供 HTTP API 服务
（启动时自动迁移数据库表结构）、健康检查和版本查询等子命令。程序支持 YAML 配置文件加载、
结构化日志（zap）以及 Prometheus 指标采集。

# 核心类型

  - Server           — 主服务器，管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware        — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - responseWriter    — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - 子命令：serve（启动服务）、version、health、help
  - 中间件链：Recovery、RequestLogger、CORS、RateLimiter（基于 IP），
    owned 路由另加 JWTAuth；proxy 路由不经认证中间件，由代理管线自行
    校验代理密钥
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号监听 → 停止 post-hook 调度器 → 关闭 HTTP → 关闭 Metrics
    → 关闭数据库连接池 → Wait
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
