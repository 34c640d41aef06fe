// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 dataflow CLI 的运维 HTTP 端点。

Manager 负责监听、后台服务与优雅关闭；NewOpsHandler 组装
/metrics（Prometheus）与 /healthz（检查点存储等依赖的探活）路由。
*/
package server
