// Package strategy 聚合可互换的缓存检索策略，并提供统一的注册入口。
//
// 策略作者需要：
//  1. 在本包内实现 Strategy 接口（对 {fetch, cache lookup/store} 能力多态）；
//  2. 通过 MustRegister 在 init() 中以键名注册构造函数；
//  3. 保证存储读故障降级为未命中、写故障记日志后吞掉，绝不让缓存故障
//     拖垮整个请求。
//
// 路由层按键名解析策略，配置可在类别维度覆盖默认绑定。
package strategy
