// 版权所有 2024 LLMLab Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、LLM 代理、响应缓存、预算/异常检测与数据库五大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 代理指标：计量请求总数、上游调用耗时、输入/输出 token 用量、
    美元成本，按 provider/model 分组 — 由 proxy.Pipeline 在每次
    成功计量的转发后记录。
  - 响应缓存指标：命中/未命中计数与当前命中率 gauge，按 cache_type
    （lru/redis）分组。
  - 预算 / 异常检测指标：budget_webhook_dispatches_total 按告警状态
    （budget_warning/budget_exceeded）计数，由 budget.Watcher 在投递
    预算告警 webhook 时记录；anomaly_detection_runs_total 按异常类型
    （spend_spike/token_surge）与结果（fired/clean）计数，由
    anomaly.Detector 在完成检测的 Check 中记录（查询失败或当日告警
    已投递时不记录）。
  - 数据库指标：活跃/空闲连接数 Gauge 由 internal/database 的连接池
    健康检查循环定期记录；查询耗时 Histogram（按 database/operation
    分组）已注册，但没有调用方记录它。
*/
package metrics
