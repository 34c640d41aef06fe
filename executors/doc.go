// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package executors 提供开箱即用的示例执行器与预组装工作流。

# 统计工作流

Dispatcher 校验输入并广播到 Sum 与 Average，两者的结果通过 FanIn
按声明顺序汇聚到有状态的 Aggregator：

	wf, err := executors.NewStatsWorkflow(logger)
	res, err := wf.Run(ctx, []int{2, 4, 6}) // res.Output == []any{12, 4.0}

# 文本工作流

UpperCase 将文本转为大写，ReverseText 反转后作为输出。

# 写作工作流

Writer 与 Reviewer 基于注入的 ChatClient 调用大模型，可通过
WithRateLimit 对调用进行限流。
*/
package executors
